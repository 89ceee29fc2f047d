package v1

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/pkg/api"
)

// capabilityParam reads :capability and records a 400 when it is unknown.
func capabilityParam(c *gin.Context) (domain.Capability, bool) {
	capability, err := domain.ParseCapability(c.Param("capability"))
	if err != nil {
		_ = c.Error(api.BadRequestError(err.Error()))
		return "", false
	}
	return capability, true
}

// optionalCapability reads ?capability=, where empty means all.
func optionalCapability(c *gin.Context) (domain.Capability, bool) {
	raw := c.Query("capability")
	if raw == "" {
		return "", true
	}
	capability, err := domain.ParseCapability(raw)
	if err != nil {
		_ = c.Error(api.BadRequestError(err.Error()))
		return "", false
	}
	return capability, true
}

func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		_ = c.Error(api.BadRequestError("Invalid '" + key + "' parameter"))
		return 0, false
	}
	return n, true
}

// MaxWindowHours bounds ?hours= windows to ten years.
const MaxWindowHours = 87600

func hoursQuery(c *gin.Context, def int) (int, bool) {
	hours, ok := intQuery(c, "hours", def)
	if !ok {
		return 0, false
	}
	if hours > MaxWindowHours {
		_ = c.Error(api.BadRequestError("Invalid 'hours' parameter, must be at most " + strconv.Itoa(MaxWindowHours)))
		return 0, false
	}
	return hours, true
}

func timeQuery(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		_ = c.Error(api.BadRequestError("Invalid '" + key + "' parameter, expected RFC 3339"))
		return time.Time{}, false
	}
	return t, true
}
