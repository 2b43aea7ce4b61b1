// Package web provides HTTP handlers and REST API endpoints for template and
// instance management.
package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

type APIHandlers struct {
	templateService *services.Template
	runtime         *engine.Runtime
	validator       *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	runtime *engine.Runtime,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		runtime:         runtime,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approvio API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approvio API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	if organizationID == "" {
		return badRequest(c, "Organization ID is required")
	}

	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.templateService.Create(c.Context(), req.ToModel(organizationID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

// CreateTemplateVersion publishes the next version of an existing template.
// The prior version is never mutated.
func (h *APIHandlers) CreateTemplateVersion(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	id := c.Params("id")

	if organizationID == "" || id == "" {
		return badRequest(c, "Organization ID and template ID are required")
	}

	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.templateService.Get(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if existing.OrganizationID != organizationID {
		return notFound(c, "template not found")
	}

	created, err := h.templateService.NewVersion(c.Context(), id, req.ToModel(organizationID))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	id := c.Params("id")

	if organizationID == "" || id == "" {
		return badRequest(c, "Organization ID and template ID are required")
	}

	var (
		template *models.WorkflowTemplate
		err      error
	)

	if versionStr := c.Query("version"); versionStr != "" {
		version, convErr := strconv.Atoi(versionStr)
		if convErr != nil || version < 1 {
			return badRequest(c, "Invalid template version")
		}

		template, err = h.templateService.GetVersion(c.Context(), id, version)
	} else {
		template, err = h.templateService.Get(c.Context(), id)
	}

	if err != nil {
		return handleServiceError(c, err)
	}

	if template.OrganizationID != organizationID {
		return notFound(c, "template not found")
	}

	return c.JSON(template)
}

func (h *APIHandlers) ListTemplates(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	if organizationID == "" {
		return badRequest(c, "Organization ID is required")
	}

	var departmentID *string
	if dept := c.Query("department_id"); dept != "" {
		departmentID = &dept
	}

	templates, err := h.templateService.List(c.Context(), organizationID, departmentID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates": templates,
	})
}

func (h *APIHandlers) CreateInstance(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	if organizationID == "" {
		return badRequest(c, "Organization ID is required")
	}

	var req CreateInstanceRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.runtime.CreateInstance(c.Context(), engine.CreateInstanceRequest{
		TemplateID:      req.TemplateID,
		TemplateVersion: req.TemplateVersion,
		OrganizationID:  organizationID,
		DepartmentID:    req.DepartmentID,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		Attributes:      req.Attributes,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(instance)
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	id := c.Params("id")

	if organizationID == "" || id == "" {
		return badRequest(c, "Organization ID and instance ID are required")
	}

	instance, err := h.runtime.Instance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if instance.OrganizationID != organizationID {
		return notFound(c, "workflow instance not found")
	}

	return c.JSON(instance)
}

func (h *APIHandlers) RecordDecision(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	id := c.Params("id")

	if organizationID == "" || id == "" {
		return badRequest(c, "Organization ID and instance ID are required")
	}

	var req DecisionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.runtime.Instance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if existing.OrganizationID != organizationID {
		return notFound(c, "workflow instance not found")
	}

	instance, err := h.runtime.RecordDecision(c.Context(), id, req.ActorID, req.Decision, req.Note)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}

func (h *APIHandlers) CancelInstance(c fiber.Ctx) error {
	organizationID := c.Params("orgId")
	id := c.Params("id")

	if organizationID == "" || id == "" {
		return badRequest(c, "Organization ID and instance ID are required")
	}

	var req CancelRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.runtime.Instance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if existing.OrganizationID != organizationID {
		return notFound(c, "workflow instance not found")
	}

	instance, err := h.runtime.Cancel(c.Context(), id, req.CancelledBy)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(instance)
}
