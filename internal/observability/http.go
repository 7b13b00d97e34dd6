package observability

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const DefaultMetricsPort = 9095

var (
	metricsServerMu      sync.Mutex
	metricsServerStarted bool
	metricsStartedAt     = time.Now()
)

// StartMetricsServer serves /metrics, /health, and /ready on port. Only
// the first call per process starts a listener; later calls are no-ops
// so server and client in one process share the endpoint.
func StartMetricsServer(port int) {
	if port <= 0 {
		port = DefaultMetricsPort
	}

	metricsServerMu.Lock()
	defer metricsServerMu.Unlock()
	if metricsServerStarted {
		return
	}
	metricsServerStarted = true

	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"uptime": time.Since(metricsStartedAt).String(),
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"uptime": time.Since(metricsStartedAt).String(),
		})
	})

	addr := fmt.Sprintf(":%d", port)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := r.Run(addr); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server exited")
		}
	}()
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		event := log.Debug()
		if status >= 500 {
			event = log.Error()
		} else if status >= 400 {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("metrics_http_request")
	}
}
