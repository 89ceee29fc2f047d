package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/health"
)

type HealthHandler struct {
	prober  *health.Prober
	started time.Time
}

func NewHealthHandler(prober *health.Prober) *HealthHandler {
	return &HealthHandler{prober: prober, started: time.Now()}
}

// Liveness reports that the process is serving.
//
// GET /health
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// ProbeOne checks one provider, enabled or not.
//
// POST /v1/admin/health/providers/:id
func (h *HealthHandler) ProbeOne(c *gin.Context) {
	info, err := h.prober.Probe(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// ProbeAll checks every enabled provider concurrently.
//
// POST /v1/admin/health/providers
func (h *HealthHandler) ProbeAll(c *gin.Context) {
	c.JSON(http.StatusOK, h.prober.ProbeAll(c.Request.Context()))
}

// Latest returns the last cached ProbeAll report.
//
// GET /v1/admin/health/providers/latest
func (h *HealthHandler) Latest(c *gin.Context) {
	report, err := h.prober.Latest(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
