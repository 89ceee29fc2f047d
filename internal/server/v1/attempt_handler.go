package v1

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/analytics"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/pkg/api"
)

const defaultAttemptPageSize = 100

type AttemptHandler struct {
	service analytics.Service
}

func NewAttemptHandler(service analytics.Service) *AttemptHandler {
	return &AttemptHandler{service: service}
}

// List returns attempt log rows, newest first.
//
// GET /v1/admin/attempts?session_id=&capability=&success=&error_kind=&since=&until=&limit=&offset=
func (h *AttemptHandler) List(c *gin.Context) {
	filter, ok := attemptFilter(c)
	if !ok {
		return
	}
	if filter.Limit == 0 {
		filter.Limit = defaultAttemptPageSize
	}

	entries, err := h.service.Query(c.Request.Context(), filter)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to query attempts", err))
		return
	}
	c.JSON(http.StatusOK, api.List(entries))
}

// Export streams the whole filtered log as CSV.
//
// GET /v1/admin/attempts/export
func (h *AttemptHandler) Export(c *gin.Context) {
	filter, ok := attemptFilter(c)
	if !ok {
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="attempts-%s.csv"`, time.Now().UTC().Format("20060102-150405")))
	c.Status(http.StatusOK)

	if _, err := h.service.ExportCSV(c.Request.Context(), c.Writer, filter); err != nil {
		if !c.Writer.Written() {
			c.Writer.Header().Del("Content-Type")
			c.Writer.Header().Del("Content-Disposition")
		}
		_ = c.Error(api.InternalError("Failed to export attempts", err))
	}
}

// Stats groups attempts in the last hours by capability and outcome.
//
// GET /v1/admin/attempts/stats?hours=24&capability=
func (h *AttemptHandler) Stats(c *gin.Context) {
	hours, ok := hoursQuery(c, 24)
	if !ok {
		return
	}
	capability, ok := optionalCapability(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), time.Duration(hours)*time.Hour, capability)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to compute attempt stats", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"hours":  hours,
		"data":   stats,
	})
}

func attemptFilter(c *gin.Context) (domain.AttemptFilter, bool) {
	var f domain.AttemptFilter

	capability, ok := optionalCapability(c)
	if !ok {
		return f, false
	}
	f.Capability = capability
	f.SessionID = c.Query("session_id")
	f.ErrorKind = domain.ErrorKind(c.Query("error_kind"))

	if raw := c.Query("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			_ = c.Error(api.BadRequestError("Invalid 'success' parameter"))
			return f, false
		}
		f.Success = &success
	}

	if f.Since, ok = timeQuery(c, "since"); !ok {
		return f, false
	}
	if f.Until, ok = timeQuery(c, "until"); !ok {
		return f, false
	}
	if hours, ok := hoursQuery(c, 0); !ok {
		return f, false
	} else if hours > 0 && f.Since.IsZero() {
		f.Since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	if f.Limit, ok = intQuery(c, "limit", 0); !ok {
		return f, false
	}
	if f.Offset, ok = intQuery(c, "offset", 0); !ok {
		return f, false
	}
	return f, true
}
