package api

import (
	"net/http"

	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/api/handlers"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/api/middleware"
	"github.com/MTIR-FRANCE-SERVICE/Signature/internal/services"
	"github.com/MTIR-FRANCE-SERVICE/Signature/pkg/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Router struct {
	engine         *gin.Engine
	logger         *zap.Logger
	metrics        *metrics.MetricsCollector
	webhookHandler *handlers.WebhookHandler
	sessionHandler *handlers.SessionHandler
	reqMiddleware  *middleware.RequestMiddleware
}

func NewRouter(
	logger *zap.Logger,
	collector *metrics.MetricsCollector,
	sessionService *services.SessionService,
	webhookSecret string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	reqMiddleware := middleware.NewRequestMiddleware(logger)
	engine.Use(reqMiddleware.ProcessRequest())
	engine.Use(reqMiddleware.RecoverPanic())

	return &Router{
		engine:         engine,
		logger:         logger,
		metrics:        collector,
		webhookHandler: handlers.NewWebhookHandler(sessionService, webhookSecret, logger, collector),
		sessionHandler: handlers.NewSessionHandler(sessionService, logger),
		reqMiddleware:  reqMiddleware,
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "up", "name": "signature"})
	})

	r.engine.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"counters":  r.metrics.GetCounters(),
			"latencies": r.metrics.GetLatencies(),
			"sizes":     r.metrics.GetSizes(),
		})
	})

	r.engine.POST("/webhook", r.webhookHandler.Receive)
	r.engine.GET("/signature/:token", r.sessionHandler.Resolve)
	r.engine.GET("/view-pdf/:token", r.sessionHandler.ViewPDF)
	r.engine.POST("/sign/:token", r.sessionHandler.Sign)
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}

func (r *Router) Run(addr string) error {
	r.logger.Info("Starting HTTP server", zap.String("address", addr))
	return r.engine.Run(addr)
}
