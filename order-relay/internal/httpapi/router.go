// Package httpapi serves the internal control surface: liveness,
// readiness, a selftest listing, Prometheus metrics and polling control.
package httpapi

import (
	"net/http"

	"notification-hub/order-relay/internal/health"
	"notification-hub/shared/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Polling starts and stops the consumers.
type Polling interface {
	StartPolling() error
	StopPolling()
}

/* -------------------- Response DTO -------------------- */

type selftestResp struct {
	Alive  bool                  `json:"alive"`
	Ready  bool                  `json:"ready"`
	Checks []health.HealthStatus `json:"checks"`
}

type pollingResp struct {
	Status string `json:"status"`
}

/* -------------------- Router -------------------- */

func NewRouter(hs *health.Service, polling Polling, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	c := cors.DefaultConfig()
	c.AllowAllOrigins = true
	c.AllowHeaders = []string{"Content-Type", "Authorization"}
	c.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(c))

	internal := r.Group("/internal")

	internal.GET("/isAlive", func(c *gin.Context) {
		if !hs.IsAlive(c.Request.Context()) {
			c.String(http.StatusInternalServerError, "NOT ALIVE")
			return
		}
		c.String(http.StatusOK, "ALIVE")
	})

	internal.GET("/isReady", func(c *gin.Context) {
		if !hs.IsReady(c.Request.Context()) {
			c.String(http.StatusServiceUnavailable, "NOT READY")
			return
		}
		c.String(http.StatusOK, "READY")
	})

	internal.GET("/selftest", func(c *gin.Context) {
		ctx := c.Request.Context()
		resp := selftestResp{
			Alive:  hs.IsAlive(ctx),
			Ready:  hs.IsReady(ctx),
			Checks: hs.Statuses(ctx),
		}
		status := http.StatusOK
		if !resp.Alive {
			status = http.StatusInternalServerError
		}
		c.JSON(status, resp)
	})

	pollingMethods := []string{http.MethodGet, http.MethodPost}

	internal.Match(pollingMethods, "/polling/start", func(c *gin.Context) {
		if err := polling.StartPolling(); err != nil {
			logger.Error("start polling: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, pollingResp{Status: "started"})
	})

	internal.Match(pollingMethods, "/polling/stop", func(c *gin.Context) {
		polling.StopPolling()
		c.JSON(http.StatusOK, pollingResp{Status: "stopped"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return r
}
