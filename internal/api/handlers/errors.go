package handlers

import (
	"errors"
	"net/http"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/session"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps the workflow error taxonomy onto the {status, message}
// envelope. Anything outside the taxonomy is logged and surfaced as a
// generic storage failure so internal details never reach the caller.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	status := http.StatusInternalServerError
	message := session.ErrStorageFailure.Error()

	switch {
	case errors.Is(err, session.ErrIncompleteData):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrDocumentFetchFailed):
		status, message = http.StatusBadGateway, err.Error()
	case errors.Is(err, session.ErrInvalidToken):
		status, message = http.StatusNotFound, session.ErrInvalidToken.Error()
	case errors.Is(err, session.ErrDocumentMissing):
		status, message = http.StatusNotFound, session.ErrDocumentMissing.Error()
	case errors.Is(err, session.ErrMissingSignature):
		status, message = http.StatusBadRequest, session.ErrMissingSignature.Error()
	case errors.Is(err, session.ErrInvalidSignatureEncoding):
		status, message = http.StatusBadRequest, session.ErrInvalidSignatureEncoding.Error()
	case errors.Is(err, session.ErrInvalidPosition):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, session.ErrAlreadySigned):
		status, message = http.StatusConflict, session.ErrAlreadySigned.Error()
	case errors.Is(err, store.ErrAlreadyExists):
		status, message = http.StatusConflict, store.ErrAlreadyExists.Error()
	default:
		logger.Error("unexpected handler error", zap.Error(err))
	}

	c.JSON(status, gin.H{"status": "error", "message": message})
}
