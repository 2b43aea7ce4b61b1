package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/approvio/approvio/pkg/directory"
	"github.com/approvio/approvio/pkg/eventbus"
	"github.com/approvio/approvio/pkg/events"
	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/otelhelper"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// maxDecisionRetries bounds the reload-and-retry loop after optimistic lock
// losses. Each retry re-validates against fresh state, so a loser either
// becomes a clean no-op or surfaces a conflict.
const maxDecisionRetries = 3

// Runtime orchestrates workflow instances: it creates them bound to a fixed
// template version, drives them through matching steps, records decisions,
// and resolves terminal status.
//
// The runtime has no scheduler of its own; it runs synchronously inside the
// calling request and leaves every instance consistent and durable before
// returning.
type Runtime struct {
	persistence persistence.Persistence
	resolver    *Resolver
	bus         eventbus.EventBus
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewRuntime creates the instance runtime. The event bus is optional; a nil
// bus disables lifecycle event publishing.
func NewRuntime(
	p persistence.Persistence,
	dir directory.Directory,
	bus eventbus.EventBus,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Runtime {
	if tracer == nil {
		tracer = otelhelper.NewNoopTracer()
	}

	return &Runtime{
		persistence: p,
		resolver:    NewResolver(dir),
		bus:         bus,
		tracer:      tracer,
		logger:      logger,
	}
}

// CreateInstanceRequest carries everything needed to start a workflow
// instance. The caller resolves tenant context and extracts the flat
// attribute map before invoking the runtime; the engine never inspects
// domain objects directly.
type CreateInstanceRequest struct {
	TemplateID string
	// TemplateVersion pins an exact version; zero means the latest.
	TemplateVersion int
	OrganizationID  string
	DepartmentID    *string
	EntityType      string
	EntityID        string
	Attributes      map[string]any
}

// CreateInstance starts a new instance at the template's initial step and
// advances it through non-matching steps. When the first matching step has no
// eligible approver, creation fails outright with a ResolutionError; nothing
// is persisted.
func (r *Runtime) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runtime.create_instance",
		attribute.String(otelhelper.TemplateIDKey, req.TemplateID),
		attribute.String(otelhelper.OrganizationIDKey, req.OrganizationID),
	)
	defer span.End()

	template, err := r.loadTemplate(ctx, req.TemplateID, req.TemplateVersion)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if template.OrganizationID != req.OrganizationID {
		return nil, ErrOrganizationMismatch
	}

	if !template.Active {
		return nil, ErrTemplateInactive
	}

	if err := validateAttributes(template, req.Attributes); err != nil {
		return nil, err
	}

	id, err := newID()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	instance := &models.WorkflowInstance{
		ID:              id,
		OrganizationID:  req.OrganizationID,
		DepartmentID:    req.DepartmentID,
		TemplateID:      template.ID,
		TemplateVersion: template.Version,
		EntityType:      req.EntityType,
		EntityID:        req.EntityID,
		CurrentStep:     template.InitialStep,
		Status:          models.InstanceStatusInProgress,
		Attributes:      req.Attributes,
		Executions:      []*models.StepExecution{},
		Revision:        1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	pending, err := r.enterCurrentStep(ctx, template, instance)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if err := r.persistence.InstanceRepository().Create(ctx, instance); err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to create instance: %w", err)
	}

	created := events.InstanceCreated{
		BaseEvent:  r.baseEvent(events.InstanceCreatedEvent, instance),
		EntityType: instance.EntityType,
		EntityID:   instance.EntityID,
	}
	r.publish(ctx, instance, append([]eventbus.Event{created}, pending...)...)

	r.logger.InfoContext(ctx, "workflow instance created",
		"instance_id", instance.ID,
		"template_id", instance.TemplateID,
		"template_version", instance.TemplateVersion,
		"status", instance.Status,
		"current_step", instance.CurrentStep,
	)

	return instance, nil
}

// RecordDecision appends one actor's decision to the open step and, when the
// step's approval mode is satisfied, advances the instance. The whole
// operation is guarded by optimistic concurrency: a racing writer loses the
// revision check, reloads, and re-validates, so two decisions that together
// satisfy ALL mode advance the instance exactly once.
//
// Resubmitting an identical (actor, decision) pair for the open step is a
// no-op success, to tolerate network retries.
func (r *Runtime) RecordDecision(ctx context.Context, instanceID, actorID string, decision models.DecisionKind, note string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runtime.record_decision",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
		attribute.String(otelhelper.ActorIDKey, actorID),
		attribute.String(otelhelper.DecisionKey, string(decision)),
	)
	defer span.End()

	for attempt := 0; attempt < maxDecisionRetries; attempt++ {
		instance, err := r.persistence.InstanceRepository().GetByID(ctx, instanceID)
		if err != nil {
			return nil, err
		}

		if instance.Status.IsTerminal() {
			return nil, ErrInstanceTerminal
		}

		execution := instance.OpenExecution()
		if execution == nil {
			return nil, ErrInstanceBlocked
		}

		if prior := execution.DecisionBy(actorID); prior != nil {
			if prior.Decision == decision {
				return instance, nil
			}

			return nil, ErrDecisionConflict
		}

		if !execution.IsRequiredActor(actorID) {
			return nil, ErrUnauthorizedActor
		}

		now := time.Now().UTC()
		execution.Decisions = append(execution.Decisions, &models.Decision{
			ActorID:   actorID,
			Decision:  decision,
			Note:      note,
			DecidedAt: now,
		})

		pending := []eventbus.Event{events.DecisionRecorded{
			BaseEvent: r.baseEvent(events.DecisionRecordedEvent, instance),
			StepName:  execution.StepName,
			ActorID:   actorID,
			Decision:  decision,
		}}

		if outcome, settled := execution.Settle(); settled {
			execution.Outcome = &outcome
			execution.ResolvedAt = &now

			pending = append(pending, events.StepResolved{
				BaseEvent: r.baseEvent(events.StepResolvedEvent, instance),
				StepName:  execution.StepName,
				Outcome:   outcome,
			})

			advanced, err := r.advance(ctx, instance, execution.StepName, outcome)
			if err != nil {
				return nil, err
			}

			pending = append(pending, advanced...)
		}

		instance.UpdatedAt = now

		err = r.persistence.InstanceRepository().Update(ctx, instance, instance.Revision)
		if persistence.IsRevisionConflict(err) {
			r.logger.DebugContext(ctx, "decision lost optimistic lock, retrying",
				"instance_id", instanceID, "actor_id", actorID, "attempt", attempt+1)

			continue
		}

		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("failed to update instance: %w", err)
		}

		r.publish(ctx, instance, pending...)

		return instance, nil
	}

	return nil, persistence.ErrRevisionConflict
}

// Cancel transitions an instance to CANCELLED. It is an external, explicitly
// triggered operation guarded by the same optimistic-concurrency path as
// decisions.
func (r *Runtime) Cancel(ctx context.Context, instanceID, cancelledBy string) (*models.WorkflowInstance, error) {
	ctx, span := otelhelper.StartSpan(ctx, r.tracer, "runtime.cancel_instance",
		attribute.String(otelhelper.InstanceIDKey, instanceID),
	)
	defer span.End()

	for attempt := 0; attempt < maxDecisionRetries; attempt++ {
		instance, err := r.persistence.InstanceRepository().GetByID(ctx, instanceID)
		if err != nil {
			return nil, err
		}

		if instance.Status.IsTerminal() {
			return nil, ErrInstanceTerminal
		}

		instance.Status = models.InstanceStatusCancelled
		instance.BlockedReason = ""
		instance.UpdatedAt = time.Now().UTC()

		err = r.persistence.InstanceRepository().Update(ctx, instance, instance.Revision)
		if persistence.IsRevisionConflict(err) {
			continue
		}

		if err != nil {
			otelhelper.SetError(span, err)

			return nil, fmt.Errorf("failed to cancel instance: %w", err)
		}

		r.publish(ctx, instance, events.InstanceCancelled{
			BaseEvent:   r.baseEvent(events.InstanceCancelledEvent, instance),
			CancelledBy: cancelledBy,
		})

		return instance, nil
	}

	return nil, persistence.ErrRevisionConflict
}

// Instance returns an instance with its full execution history.
func (r *Runtime) Instance(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	return r.persistence.InstanceRepository().GetByID(ctx, instanceID)
}

// ResumeBlocked retries actor resolution for an instance that blocked
// mid-flight. Membership changes (a member gaining the approver role) unblock
// it; until then the instance stays blocked and the call is a no-op.
func (r *Runtime) ResumeBlocked(ctx context.Context, instanceID string) (*models.WorkflowInstance, error) {
	instance, err := r.persistence.InstanceRepository().GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if instance.Status.IsTerminal() || !instance.IsBlocked() {
		return instance, nil
	}

	template, err := r.loadTemplate(ctx, instance.TemplateID, instance.TemplateVersion)
	if err != nil {
		return nil, err
	}

	pending, err := r.enterCurrentStep(ctx, template, instance)
	if err != nil {
		if IsResolutionError(err) {
			// Still no approver; stay blocked.
			return instance, nil
		}

		return nil, err
	}

	instance.BlockedReason = ""
	instance.UpdatedAt = time.Now().UTC()

	if err := r.persistence.InstanceRepository().Update(ctx, instance, instance.Revision); err != nil {
		return nil, fmt.Errorf("failed to unblock instance: %w", err)
	}

	r.publish(ctx, instance, pending...)

	r.logger.InfoContext(ctx, "blocked instance resumed",
		"instance_id", instance.ID, "current_step", instance.CurrentStep)

	return instance, nil
}

// advance applies the transition for a settled step and enters the next one.
// A missing transition is a fatal inconsistency: it is logged, surfaced, and
// never persisted.
func (r *Runtime) advance(ctx context.Context, instance *models.WorkflowInstance, stepName string, outcome models.Outcome) ([]eventbus.Event, error) {
	template, err := r.loadTemplate(ctx, instance.TemplateID, instance.TemplateVersion)
	if err != nil {
		return nil, err
	}

	step := template.Step(stepName)
	if step == nil {
		return nil, &ConsistencyError{InstanceID: instance.ID, StepName: stepName, Outcome: outcome}
	}

	transition, err := Next(instance.ID, step, outcome)
	if err != nil {
		r.logger.ErrorContext(ctx, "fatal workflow inconsistency",
			"instance_id", instance.ID, "step", stepName, "outcome", outcome, "error", err)

		return nil, err
	}

	if transition.IsTerminal() {
		instance.Status = *transition.Terminal
		instance.CurrentStep = ""

		return []eventbus.Event{events.InstanceCompleted{
			BaseEvent: r.baseEvent(events.InstanceCompletedEvent, instance),
			Status:    instance.Status,
		}}, nil
	}

	instance.CurrentStep = transition.ToStep

	pending, err := r.enterCurrentStep(ctx, template, instance)
	if err != nil {
		if IsResolutionError(err) {
			// No eligible approver mid-flight: keep the instance in progress,
			// mark it blocked, and let the sweeper retry resolution.
			instance.BlockedReason = err.Error()

			return append(pending, events.InstanceBlocked{
				BaseEvent: r.baseEvent(events.InstanceBlockedEvent, instance),
				StepName:  instance.CurrentStep,
				Reason:    instance.BlockedReason,
			}), nil
		}

		return nil, err
	}

	return pending, nil
}

// enterCurrentStep walks the instance forward from its current step: steps
// whose conditions match open a StepExecution with a snapshotted actor set;
// non-matching steps are passed over along their skip transition without an
// execution record. The walk is bounded by the step count, so a defective
// skip cycle surfaces as a ConsistencyError instead of looping.
func (r *Runtime) enterCurrentStep(ctx context.Context, template *models.WorkflowTemplate, instance *models.WorkflowInstance) ([]eventbus.Event, error) {
	scope := directory.Scope{
		OrganizationID: instance.OrganizationID,
		DepartmentID:   instance.DepartmentID,
	}

	pending := []eventbus.Event{}

	for hops := 0; hops <= len(template.Steps); hops++ {
		step := template.Step(instance.CurrentStep)
		if step == nil {
			return nil, &ConsistencyError{
				InstanceID: instance.ID,
				StepName:   instance.CurrentStep,
				Outcome:    models.OutcomeSkipped,
			}
		}

		if Matches(step, instance.Attributes) {
			actors, mode, err := r.resolver.ResolveStep(ctx, step, scope)
			if err != nil {
				return pending, err
			}

			id, err := newID()
			if err != nil {
				return nil, err
			}

			instance.Executions = append(instance.Executions, &models.StepExecution{
				ID:             id,
				StepName:       step.Name,
				RequiredActors: actors,
				Mode:           mode,
				Decisions:      []*models.Decision{},
				EnteredAt:      time.Now().UTC(),
			})

			return append(pending, events.StepEntered{
				BaseEvent:      r.baseEvent(events.StepEnteredEvent, instance),
				StepName:       step.Name,
				RequiredActors: actors,
			}), nil
		}

		transition := SkipTransition(step)
		if transition.IsTerminal() {
			instance.Status = *transition.Terminal
			instance.CurrentStep = ""

			return append(pending, events.InstanceCompleted{
				BaseEvent: r.baseEvent(events.InstanceCompletedEvent, instance),
				Status:    instance.Status,
			}), nil
		}

		instance.CurrentStep = transition.ToStep
	}

	return nil, &ConsistencyError{
		InstanceID: instance.ID,
		StepName:   instance.CurrentStep,
		Outcome:    models.OutcomeSkipped,
	}
}

func (r *Runtime) loadTemplate(ctx context.Context, id string, version int) (*models.WorkflowTemplate, error) {
	repo := r.persistence.TemplateRepository()

	if version > 0 {
		return repo.GetVersion(ctx, id, version)
	}

	return repo.GetLatest(ctx, id)
}

// validateAttributes checks the submitted attribute map against the
// template's optional JSON schema.
func validateAttributes(template *models.WorkflowTemplate, attributes map[string]any) error {
	if template.AttributeSchema == nil {
		return nil
	}

	if attributes == nil {
		attributes = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(template.AttributeSchema),
		gojsonschema.NewGoLoader(attributes),
	)
	if err != nil {
		return fmt.Errorf("failed to validate attributes: %w", err)
	}

	if !result.Valid() {
		verr := &ValidationError{}
		for _, issue := range result.Errors() {
			verr.add("attributes."+issue.Field(), "%s", issue.Description())
		}

		return verr
	}

	return nil
}

func (r *Runtime) baseEvent(eventType events.EventType, instance *models.WorkflowInstance) events.BaseEvent {
	return events.BaseEvent{
		ID:              uuid.NewString(),
		Type:            eventType,
		Timestamp:       time.Now().UTC(),
		OrganizationID:  instance.OrganizationID,
		InstanceID:      instance.ID,
		TemplateID:      instance.TemplateID,
		TemplateVersion: instance.TemplateVersion,
	}
}

func (r *Runtime) publish(ctx context.Context, instance *models.WorkflowInstance, pending ...eventbus.Event) {
	if r.bus == nil {
		return
	}

	for _, event := range pending {
		if err := r.bus.Publish(ctx, instance.ID, event); err != nil {
			r.logger.ErrorContext(ctx, "failed to publish lifecycle event",
				"instance_id", instance.ID, "event_type", event.GetType(), "error", err)
		}
	}
}

func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate ID: %w", err)
	}

	return id.String(), nil
}
