// infrastructure/gin_router.go
package infrastructure

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Handlers  *VideoHandlers
	JWTSecret []byte
	Metrics   *PrometheusMetrics
	Checks    map[string]HealthCheck
	Logger    logrus.FieldLogger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(cfg.Logger, cfg.Metrics))

	router.GET("/health", healthHandler(cfg.Checks))
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Clip Processor Service is running!"})
	})
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	h := cfg.Handlers
	authRoutes := router.Group("/")
	authRoutes.Use(AuthMiddleware(cfg.JWTSecret))
	{
		authRoutes.POST("/videos", h.SubmitVideoHandler)
		authRoutes.GET("/videos", h.ListVideosHandler)
		authRoutes.GET("/videos/:id", h.GetVideoHandler)
		authRoutes.DELETE("/videos/:id", h.DeleteVideoHandler)
		authRoutes.POST("/videos/:id/pipeline", h.RunPipelineHandler)
		authRoutes.POST("/videos/:id/reset", h.ResetVideoHandler)
		authRoutes.POST("/videos/:id/clips", h.ExtractClipsHandler)
		authRoutes.GET("/videos/:id/clips", h.ListClipsHandler)
		authRoutes.GET("/videos/:id/jobs", h.ListJobsHandler)
		authRoutes.GET("/videos/:id/transcription", h.GetTranscriptionHandler)
		authRoutes.GET("/jobs/:id", h.GetJobHandler)

		authRoutes.POST("/clips/:id/subtitles", h.GenerateSubtitlesHandler)
		authRoutes.GET("/clips/:id/subtitles", h.GetSubtitlesHandler)
		authRoutes.PUT("/clips/:id/subtitles", h.UpdateSubtitlesHandler)
		authRoutes.POST("/clips/:id/subtitles/confirm", h.ConfirmSubtitlesHandler)
		authRoutes.GET("/clips/:id/subtitles/srt", h.SubtitlesSRTHandler)
	}
	return router
}

func requestLogger(logger logrus.FieldLogger, metrics *PrometheusMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		if metrics != nil {
			metrics.ObserveHTTP(c.Request.Method, route, status)
		}
		if route == "/health" || route == "/metrics" {
			return
		}
		entry := logger.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"route":   route,
			"status":  status,
			"latency": time.Since(started).Round(time.Millisecond).String(),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("request served")
		} else {
			entry.Info("request served")
		}
	}
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		body := gin.H{}
		up := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				body[name] = "error: " + err.Error()
				up = false
				continue
			}
			body[name] = "connected"
		}
		if !up {
			body["status"] = "DOWN"
			c.JSON(http.StatusInternalServerError, body)
			return
		}
		body["status"] = "UP"
		c.JSON(http.StatusOK, body)
	}
}
