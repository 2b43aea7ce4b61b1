// Package events defines the lifecycle events the runtime publishes so
// external collaborators (notifiers, audit sinks) can react to workflow
// progress without the engine delivering notifications itself.
package events

import (
	"time"

	"github.com/approvio/approvio/pkg/models"
)

type EventType string

// Topic carries all workflow lifecycle events.
const Topic = "approvio.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	InstanceCreatedEvent   EventType = "instance.created"
	StepEnteredEvent       EventType = "instance.step.entered"
	DecisionRecordedEvent  EventType = "instance.decision.recorded"
	StepResolvedEvent      EventType = "instance.step.resolved"
	InstanceCompletedEvent EventType = "instance.completed"
	InstanceCancelledEvent EventType = "instance.cancelled"
	InstanceBlockedEvent   EventType = "instance.blocked"
)

// BaseEvent carries the fields shared by all lifecycle events.
type BaseEvent struct {
	ID              string    `json:"id"`
	Type            EventType `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	OrganizationID  string    `json:"organization_id"`
	InstanceID      string    `json:"instance_id"`
	TemplateID      string    `json:"template_id"`
	TemplateVersion int       `json:"template_version"`
}

type InstanceCreated struct {
	BaseEvent

	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
}

func (e InstanceCreated) GetType() EventType { return InstanceCreatedEvent }

type StepEntered struct {
	BaseEvent

	StepName       string   `json:"step_name"`
	RequiredActors []string `json:"required_actors"`
}

func (e StepEntered) GetType() EventType { return StepEnteredEvent }

type DecisionRecorded struct {
	BaseEvent

	StepName string              `json:"step_name"`
	ActorID  string              `json:"actor_id"`
	Decision models.DecisionKind `json:"decision"`
}

func (e DecisionRecorded) GetType() EventType { return DecisionRecordedEvent }

type StepResolved struct {
	BaseEvent

	StepName string         `json:"step_name"`
	Outcome  models.Outcome `json:"outcome"`
}

func (e StepResolved) GetType() EventType { return StepResolvedEvent }

type InstanceCompleted struct {
	BaseEvent

	Status models.InstanceStatus `json:"status"`
}

func (e InstanceCompleted) GetType() EventType { return InstanceCompletedEvent }

type InstanceCancelled struct {
	BaseEvent

	CancelledBy string `json:"cancelled_by"`
}

func (e InstanceCancelled) GetType() EventType { return InstanceCancelledEvent }

type InstanceBlocked struct {
	BaseEvent

	StepName string `json:"step_name"`
	Reason   string `json:"reason"`
}

func (e InstanceBlocked) GetType() EventType { return InstanceBlockedEvent }
