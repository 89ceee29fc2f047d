package v1

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/internal/server/validator"
	"github.com/nulzo/capability-router/pkg/api"
)

type PolicyHandler struct {
	store        *policy.Store
	provisioner  *policy.Provisioner
	defaults     policy.DefaultsFunc
	maxTimeoutMS int
}

func NewPolicyHandler(store *policy.Store, provisioner *policy.Provisioner, defaults policy.DefaultsFunc, maxTimeoutMS int) *PolicyHandler {
	if defaults == nil {
		defaults = domain.RecommendedDefaults
	}
	return &PolicyHandler{
		store:        store,
		provisioner:  provisioner,
		defaults:     defaults,
		maxTimeoutMS: maxTimeoutMS,
	}
}

// GET /v1/admin/policies
func (h *PolicyHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, api.List(h.store.List()))
}

// GET /v1/admin/policies/:capability
func (h *PolicyHandler) Get(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}
	p, found := h.store.Get(capability)
	if !found {
		_ = c.Error(fmt.Errorf("%w: %s", policy.ErrPolicyNotFound, capability))
		return
	}
	c.JSON(http.StatusOK, p)
}

// Put fully replaces a policy. A version in the body turns the write into a
// compare-and-set against the stored version.
//
// PUT /v1/admin/policies/:capability
func (h *PolicyHandler) Put(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}

	var req api.PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}
	if h.maxTimeoutMS > 0 && req.TimeoutMS > h.maxTimeoutMS {
		_ = c.Error(api.ValidationError(map[string]string{
			"timeout_ms": fmt.Sprintf("timeout_ms must be %d or less", h.maxTimeoutMS),
		}))
		return
	}

	p := domain.Policy{
		Capability:        capability,
		PrimaryProviderID: req.PrimaryProviderID,
		PrimaryModel:      req.PrimaryModel,
		TimeoutMS:         req.TimeoutMS,
		RetryCount:        req.RetryCount,
		Enabled:           req.Enabled,
	}
	for _, cand := range req.FallbackChain {
		p.FallbackChain = append(p.FallbackChain, domain.Candidate{ProviderID: cand.ProviderID, Model: cand.Model})
	}

	var (
		saved domain.Policy
		err   error
	)
	if req.Version != nil {
		saved, err = h.store.SetIfVersion(c.Request.Context(), p, *req.Version)
	} else {
		saved, err = h.store.Set(c.Request.Context(), p)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// DELETE /v1/admin/policies/:capability
func (h *PolicyHandler) Delete(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}
	if err := h.store.Delete(c.Request.Context(), capability); err != nil {
		_ = c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Defaults returns the recommended timeout and retry settings.
//
// GET /v1/admin/policies/:capability/defaults
func (h *PolicyHandler) Defaults(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.defaults(capability))
}

// ApplyTemplate resolves a template against the current providers and
// stores the result. Nothing is saved when a requirement is unsatisfied.
//
// POST /v1/admin/policies/:capability/apply-template
func (h *PolicyHandler) ApplyTemplate(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}

	var req api.ApplyTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	saved, err := h.provisioner.Apply(c.Request.Context(), capability, req.TemplateID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, saved)
}
