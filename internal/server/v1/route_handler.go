package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/server/validator"
	"github.com/nulzo/capability-router/pkg/api"
)

const HeaderSessionID = "X-Session-ID"

// Router is the routing engine as seen by the HTTP layer.
type Router interface {
	Route(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

type RouteHandler struct {
	router Router
}

func NewRouteHandler(router Router) *RouteHandler {
	return &RouteHandler{router: router}
}

// Route forwards the payload along the capability's policy chain.
//
// POST /v1/route/:capability
func (h *RouteHandler) Route(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}

	var req api.RouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	sessionID := c.GetHeader(HeaderSessionID)
	if sessionID == "" {
		sessionID = req.SessionID
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resp, err := h.router.Route(c.Request.Context(), gateway.Request{
		Capability: capability,
		SessionID:  sessionID,
		Payload:    req.Payload,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}

	out := api.RouteResponse{
		Capability:   string(resp.Capability),
		SessionID:    resp.SessionID,
		ProviderID:   resp.ProviderID,
		Model:        resp.Model,
		ProtocolType: string(resp.ProtocolType),
		StatusCode:   resp.Result.StatusCode,
		ContentType:  resp.Result.ContentType,
		Attempts:     make([]api.AttemptView, len(resp.Attempts)),
	}
	for i, a := range resp.Attempts {
		out.Attempts[i] = api.AttemptViewFrom(a)
	}
	if resp.Result.IsJSON() {
		out.Data = resp.Result.Body
	} else {
		out.Body = resp.Result.Body
	}

	c.Header(HeaderSessionID, sessionID)
	c.JSON(http.StatusOK, out)
}
