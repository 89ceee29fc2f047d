package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/core/domain"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/pkg/api"
)

type TemplateHandler struct {
	catalog     *policy.Catalog
	provisioner *policy.Provisioner
}

func NewTemplateHandler(catalog *policy.Catalog, provisioner *policy.Provisioner) *TemplateHandler {
	return &TemplateHandler{catalog: catalog, provisioner: provisioner}
}

// GET /v1/admin/templates?capability=
func (h *TemplateHandler) List(c *gin.Context) {
	capability, ok := optionalCapability(c)
	if !ok {
		return
	}
	templates := h.catalog.List(capability)
	if templates == nil {
		templates = []domain.RouteTemplate{}
	}
	c.JSON(http.StatusOK, api.List(templates))
}

// Preview shows the policy a template would produce without saving it.
//
// GET /v1/admin/templates/:capability/:id/preview
func (h *TemplateHandler) Preview(c *gin.Context) {
	capability, ok := capabilityParam(c)
	if !ok {
		return
	}
	p, err := h.provisioner.Preview(capability, c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p)
}
