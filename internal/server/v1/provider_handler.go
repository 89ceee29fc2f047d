package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/server/validator"
	"github.com/nulzo/capability-router/pkg/api"
)

type ProviderHandler struct {
	registry *gateway.Registry
}

func NewProviderHandler(registry *gateway.Registry) *ProviderHandler {
	return &ProviderHandler{registry: registry}
}

// List returns providers in declaration order.
//
// GET /v1/admin/providers
func (h *ProviderHandler) List(c *gin.Context) {
	providers := h.registry.List()
	views := make([]api.ProviderView, len(providers))
	for i, p := range providers {
		views[i] = api.ProviderViewFrom(p)
	}
	c.JSON(http.StatusOK, api.List(views))
}

// GET /v1/admin/providers/:id
func (h *ProviderHandler) Get(c *gin.Context) {
	p, err := h.registry.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, api.ProviderViewFrom(p))
}

// POST /v1/admin/providers
func (h *ProviderHandler) Create(c *gin.Context) {
	var req api.ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	cfg := providerFromRequest(req)
	cfg.ID = req.ID
	cfg.Enabled = req.Enabled == nil || *req.Enabled

	saved, err := h.registry.Create(c.Request.Context(), cfg)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, api.ProviderViewFrom(saved))
}

// Update replaces the provider; an empty credential keeps the stored one and
// an omitted enabled flag keeps the current state.
//
// PUT /v1/admin/providers/:id
func (h *ProviderHandler) Update(c *gin.Context) {
	existing, err := h.registry.Get(c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}

	var req api.ProviderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	cfg := providerFromRequest(req)
	cfg.ID = existing.ID
	cfg.Enabled = existing.Enabled
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}

	saved, err := h.registry.Save(c.Request.Context(), cfg)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, api.ProviderViewFrom(saved))
}

// DELETE /v1/admin/providers/:id
func (h *ProviderHandler) Delete(c *gin.Context) {
	if err := h.registry.Delete(c.Request.Context(), c.Param("id")); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

func providerFromRequest(req api.ProviderRequest) domain.ProviderConfig {
	return domain.ProviderConfig{
		ProviderKey:  req.ProviderKey,
		DisplayName:  req.DisplayName,
		ProtocolType: domain.ProtocolType(req.ProtocolType),
		BaseURL:      req.BaseURL,
		AuthType:     req.AuthType,
		Credential:   req.Credential,
		OrgID:        req.OrgID,
		Extra:        req.Extra,
	}
}
