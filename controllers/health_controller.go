package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type HealthController struct {
	appName         string
	dispatchMode    string
	progressBackend string
	pingDB          func() error
	logger          *zap.Logger
}

// NewHealthController reports on the running instance. pingDB may be nil.
func NewHealthController(appName, dispatchMode, progressBackend string, pingDB func() error, logger *zap.Logger) *HealthController {
	return &HealthController{
		appName:         appName,
		dispatchMode:    dispatchMode,
		progressBackend: progressBackend,
		pingDB:          pingDB,
		logger:          logger,
	}
}

func (hc *HealthController) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if hc.pingDB != nil {
		if err := hc.pingDB(); err != nil {
			hc.logger.Warn("health check: database unreachable", zap.Error(err))
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":           status,
		"app":              hc.appName,
		"database":         "postgresql",
		"dispatch_mode":    hc.dispatchMode,
		"progress_backend": hc.progressBackend,
	})
}
