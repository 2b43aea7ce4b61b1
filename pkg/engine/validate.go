package engine

import (
	"fmt"

	"github.com/approvio/approvio/pkg/models"
	"github.com/expr-lang/expr"
	"github.com/xeipuuv/gojsonschema"
)

// ValidateTemplate checks the structural invariants a template must satisfy
// before it may be persisted. It fails fast and wholesale: a template with any
// issue is rejected and nothing is written.
//
// Checks: unique step names, a resolvable initial step, per-step condition and
// action validity, APPROVED and REJECTED transition coverage on every step,
// resolvable transition targets, reachability of every step from the initial
// step, and termination (every reachable step has a path to a terminal
// transition, so cycles cannot trap an instance).
func ValidateTemplate(template *models.WorkflowTemplate) error {
	verr := &ValidationError{}

	if len(template.Steps) == 0 {
		verr.add("steps", "template requires at least one step")

		return verr
	}

	steps := make(map[string]*models.WorkflowStep, len(template.Steps))

	for i, step := range template.Steps {
		field := fmt.Sprintf("steps[%d]", i)

		if step.Name == "" {
			verr.add(field+".name", "step name is required")

			continue
		}

		if _, dup := steps[step.Name]; dup {
			verr.add(field+".name", "duplicate step name %q", step.Name)

			continue
		}

		steps[step.Name] = step
	}

	if template.InitialStep == "" {
		verr.add("initial_step", "initial step is required")
	} else if _, ok := steps[template.InitialStep]; !ok {
		verr.add("initial_step", "initial step %q does not name a step", template.InitialStep)
	}

	for i, step := range template.Steps {
		validateStep(verr, fmt.Sprintf("steps[%d]", i), step, steps)
	}

	// Graph checks only make sense on a structurally sound step set.
	if len(verr.Issues) == 0 {
		validateGraph(verr, template, steps)
	}

	if template.AttributeSchema != nil {
		loader := gojsonschema.NewGoLoader(template.AttributeSchema)
		if _, err := gojsonschema.NewSchema(loader); err != nil {
			verr.add("attribute_schema", "invalid JSON schema: %v", err)
		}
	}

	if len(verr.Issues) > 0 {
		return verr
	}

	return nil
}

func validateStep(verr *ValidationError, field string, step *models.WorkflowStep, steps map[string]*models.WorkflowStep) {
	for j, condition := range step.Conditions {
		condField := fmt.Sprintf("%s.conditions[%d]", field, j)

		if err := condition.Validate(); err != nil {
			verr.add(condField, "%v", err)

			continue
		}

		if condition.Kind == models.ConditionKindExpression {
			if _, err := expr.Compile(condition.Expression.Source, expr.AllowUndefinedVariables()); err != nil {
				verr.add(condField+".expression", "does not compile: %v", err)
			}
		}
	}

	if len(step.Actions) == 0 {
		verr.add(field+".actions", "step requires at least one action")
	}

	for j, action := range step.Actions {
		if err := action.Validate(); err != nil {
			verr.add(fmt.Sprintf("%s.actions[%d]", field, j), "%v", err)
		}
	}

	covered := make(map[models.Outcome]bool, len(step.Transitions))

	for j, transition := range step.Transitions {
		trField := fmt.Sprintf("%s.transitions[%d]", field, j)

		if err := transition.Validate(); err != nil {
			verr.add(trField, "%v", err)

			continue
		}

		if covered[transition.OnOutcome] {
			verr.add(trField, "duplicate transition for outcome %s", transition.OnOutcome)

			continue
		}

		covered[transition.OnOutcome] = true

		if transition.ToStep != "" {
			if _, ok := steps[transition.ToStep]; !ok {
				verr.add(trField+".to_step", "target step %q does not exist", transition.ToStep)
			}
		}
	}

	// Every step must cover both decision outcomes; SKIPPED coverage is
	// optional because skipped steps fall through along APPROVED.
	if !covered[models.OutcomeApproved] {
		verr.add(field+".transitions", "missing transition for outcome APPROVED")
	}

	if !covered[models.OutcomeRejected] {
		verr.add(field+".transitions", "missing transition for outcome REJECTED")
	}
}

// validateGraph runs the reachability and termination checks over the
// transition graph, treating steps as vertices and transition targets as
// directed edges.
func validateGraph(verr *ValidationError, template *models.WorkflowTemplate, steps map[string]*models.WorkflowStep) {
	reachable := map[string]bool{template.InitialStep: true}
	frontier := []string{template.InitialStep}

	for len(frontier) > 0 {
		name := frontier[0]
		frontier = frontier[1:]

		for _, transition := range steps[name].Transitions {
			if transition.ToStep == "" || reachable[transition.ToStep] {
				continue
			}

			reachable[transition.ToStep] = true
			frontier = append(frontier, transition.ToStep)
		}
	}

	for _, step := range template.Steps {
		if !reachable[step.Name] {
			verr.add("steps", "step %q is unreachable from the initial step", step.Name)
		}
	}

	// Termination: walk backwards from steps that declare a terminal
	// transition. Every reachable step must be able to reach one, otherwise
	// an instance could loop forever.
	terminating := make(map[string]bool, len(steps))

	for changed := true; changed; {
		changed = false

		for name, step := range steps {
			if terminating[name] {
				continue
			}

			for _, transition := range step.Transitions {
				if transition.IsTerminal() || terminating[transition.ToStep] {
					terminating[name] = true
					changed = true

					break
				}
			}
		}
	}

	for name := range steps {
		if reachable[name] && !terminating[name] {
			verr.add("steps", "non-terminating workflow: step %q has no path to a terminal transition", name)
		}
	}
}
