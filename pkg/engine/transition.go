package engine

import "github.com/approvio/approvio/pkg/models"

// Next returns the transition a step declares for a decision outcome. On
// validated templates this is total; a miss is a fatal ConsistencyError, not
// a user error.
func Next(instanceID string, step *models.WorkflowStep, outcome models.Outcome) (*models.Transition, error) {
	if transition := step.Transition(outcome); transition != nil {
		return transition, nil
	}

	return nil, &ConsistencyError{
		InstanceID: instanceID,
		StepName:   step.Name,
		Outcome:    outcome,
	}
}

// SkipTransition returns the transition followed when a step's conditions do
// not match. A declared SKIPPED transition wins; without one the step falls
// through along its APPROVED transition, which validation guarantees exists.
func SkipTransition(step *models.WorkflowStep) *models.Transition {
	if transition := step.Transition(models.OutcomeSkipped); transition != nil {
		return transition
	}

	return step.Transition(models.OutcomeApproved)
}
