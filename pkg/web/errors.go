package web

import (
	"errors"

	"github.com/approvio/approvio/pkg/engine"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/approvio/approvio/pkg/services"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleServiceError maps engine, service and persistence errors onto the
// RFC 7807 surface.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case engine.IsAuthorizationError(err):
		problem := problems.NewStatusProblem(403).
			WithInstance(c.Path()).
			WithType("not_an_approver").
			WithDetail(err.Error())

		return c.Status(fiber.StatusForbidden).JSON(problem)

	case persistence.IsTemplateNotFound(err):
		return notFound(c, "template not found")

	case persistence.IsInstanceNotFound(err):
		return notFound(c, "workflow instance not found")

	// The caller's tenant scope does not own the template; indistinguishable
	// from a missing template on purpose.
	case errors.Is(err, engine.ErrOrganizationMismatch):
		return notFound(c, "template not found")

	case engine.IsConflictError(err),
		services.IsConflictError(err),
		persistence.IsRevisionConflict(err),
		errors.Is(err, persistence.ErrTemplateVersionExists),
		errors.Is(err, engine.ErrTemplateInactive):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case engine.IsResolutionError(err):
		// Creating an instance whose first step has no eligible approver.
		problem := problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithType("no_eligible_approver").
			WithDetail(err.Error())

		return c.Status(fiber.StatusUnprocessableEntity).JSON(problem)

	case engine.IsConsistencyError(err):
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("workflow_inconsistency").
			WithDetail(err.Error())

		return c.Status(fiber.StatusInternalServerError).JSON(problem)

	default:
		return internalError(c, err)
	}
}
