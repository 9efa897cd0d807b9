package handlers

import (
	"net/http"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler serves the unauthenticated browser side of a signing
// session: resolving the token, streaming the PDF and accepting signatures.
type SessionHandler struct {
	sessionService *services.SessionService
	logger         *zap.Logger
}

func NewSessionHandler(sessionService *services.SessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger.With(zap.String("handler", "session")),
	}
}

// Resolve returns the view model for the signature page.
func (h *SessionHandler) Resolve(c *gin.Context) {
	token := c.Param("token")

	s, err := h.sessionService.Resolve(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "success",
		"token":              s.Token,
		"client":             s.Client,
		"documentRef":        "/view-pdf/" + s.Token,
		"signaturePositions": s.RequestedPositions,
		"sessionStatus":      s.Status,
	})
}

// ViewPDF streams the source document for the browser's viewer iframe.
func (h *SessionHandler) ViewPDF(c *gin.Context) {
	token := c.Param("token")

	path, err := h.sessionService.Document(c.Request.Context(), token)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Header("Content-Type", "application/pdf")
	c.File(path)
}

type signRequest struct {
	Signature  string                     `json:"signature"`
	Signatures []services.SubmissionEntry `json:"signatures"`
}

// Sign accepts either a single {signature} payload or a {signatures} batch
// and finalizes the session.
func (h *SessionHandler) Sign(c *gin.Context) {
	token := c.Param("token")

	var req signRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON payload"})
		return
	}

	entries := req.Signatures
	if len(entries) == 0 && req.Signature != "" {
		entries = []services.SubmissionEntry{{Image: req.Signature, Index: 0}}
	}

	result, err := h.sessionService.Submit(c.Request.Context(), token, entries)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "success",
		"message":  "Signature recorded",
		"client":   result.Client.FullName(),
		"token":    token,
		"accepted": result.Accepted,
		"skipped":  result.Skipped,
	})
}
