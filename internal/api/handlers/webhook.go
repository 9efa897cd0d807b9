package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/services"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/signing"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	sessionService *services.SessionService
	webhookSecret  string
	logger         *zap.Logger
	metrics        *metrics.MetricsCollector
}

func NewWebhookHandler(
	sessionService *services.SessionService,
	webhookSecret string,
	logger *zap.Logger,
	collector *metrics.MetricsCollector,
) *WebhookHandler {
	return &WebhookHandler{
		sessionService: sessionService,
		webhookSecret:  webhookSecret,
		logger:         logger.With(zap.String("handler", "webhook")),
		metrics:        collector,
	}
}

// Receive handles the inbound identity webhook. The response goes to the
// webhook caller, not the signer's browser, so correlation happens through
// the token embedded in redirectUrl rather than cookies or client addresses.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.logger.Error("failed to read webhook body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "unreadable request body"})
		return
	}

	if h.webhookSecret != "" {
		header := c.GetHeader("X-Webhook-Signature")
		if !signing.VerifyWebhookSignature(h.webhookSecret, body, header) {
			h.logger.Warn("webhook signature rejected", zap.String("client_ip", c.ClientIP()))
			h.metrics.IncrementCounter("webhooks_rejected", nil)
			c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "invalid webhook signature"})
			return
		}
	}

	var req services.WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "message": "invalid JSON payload"})
		return
	}

	_, redirectURL, err := h.sessionService.CreateFromWebhook(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "success",
		"redirectUrl": redirectURL,
		"message":     "Data received, forward the signer to the redirect URL",
	})
}
