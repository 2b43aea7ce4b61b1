package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/approvio/approvio/pkg/models"
	"github.com/approvio/approvio/pkg/persistence"
	"github.com/lib/pq"
)

const pqUniqueViolation = "23505"

// TemplateRepository handles template version storage. Rows are write-once:
// there is no UPDATE path for any template table.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// Create persists a new template version with its steps, conditions, actions
// and transitions in one transaction.
func (r *TemplateRepository) Create(ctx context.Context, template *models.WorkflowTemplate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var schemaJSON []byte
	if template.AttributeSchema != nil {
		schemaJSON, err = json.Marshal(template.AttributeSchema)
		if err != nil {
			return fmt.Errorf("failed to marshal attribute schema: %w", err)
		}
	}

	templateQuery := `
		INSERT INTO workflow_templates (id, version, organization_id, department_id,
			name, description, trigger_type, active, initial_step, attribute_schema,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = tx.ExecContext(ctx, templateQuery,
		template.ID,
		template.Version,
		template.OrganizationID,
		template.DepartmentID,
		template.Name,
		template.Description,
		template.TriggerType,
		template.Active,
		template.InitialStep,
		schemaJSON,
		template.CreatedAt,
		template.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return persistence.ErrTemplateVersionExists
		}

		return fmt.Errorf("failed to insert template: %w", err)
	}

	for _, step := range template.Steps {
		err = r.insertStep(ctx, tx, template, step)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *TemplateRepository) insertStep(ctx context.Context, tx *sql.Tx, template *models.WorkflowTemplate, step *models.WorkflowStep) error {
	stepQuery := `
		INSERT INTO template_steps (template_id, template_version, name,
			display_order, description, all_conditions_must_match)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := tx.ExecContext(ctx, stepQuery,
		template.ID, template.Version, step.Name,
		step.Order, step.Description, step.AllConditionsMustMatch,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step %s: %w", step.Name, err)
	}

	for position, condition := range step.Conditions {
		payload, err := json.Marshal(condition)
		if err != nil {
			return fmt.Errorf("failed to marshal condition: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_conditions (template_id, template_version, step_name, position, kind, payload)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, template.ID, template.Version, step.Name, position, condition.Kind, payload)
		if err != nil {
			return fmt.Errorf("failed to insert condition for step %s: %w", step.Name, err)
		}
	}

	for position, action := range step.Actions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_actions (template_id, template_version, step_name, position, kind, mode, approver_role, member_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, template.ID, template.Version, step.Name, position,
			action.Kind, action.Mode, nullable(action.ApproverRole), nullable(action.MemberID))
		if err != nil {
			return fmt.Errorf("failed to insert action for step %s: %w", step.Name, err)
		}
	}

	for _, transition := range step.Transitions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_transitions (template_id, template_version, step_name, on_outcome, to_step, terminal_status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, template.ID, template.Version, step.Name,
			transition.OnOutcome, nullable(transition.ToStep), transition.Terminal)
		if err != nil {
			return fmt.Errorf("failed to insert transition for step %s: %w", step.Name, err)
		}
	}

	return nil
}

// GetVersion returns one exact template version with its full step graph.
func (r *TemplateRepository) GetVersion(ctx context.Context, id string, version int) (*models.WorkflowTemplate, error) {
	query := `
		SELECT
			id
		  , version
		  , organization_id
		  , department_id
		  , name
		  , description
		  , trigger_type
		  , active
		  , initial_step
		  , attribute_schema
		  , created_at
		  , updated_at
		FROM workflow_templates
		WHERE id = $1 AND version = $2
	`

	template, err := r.scanTemplate(r.db.QueryRowContext(ctx, query, id, version))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	err = r.loadSteps(ctx, template)
	if err != nil {
		return nil, err
	}

	return template, nil
}

// GetLatest returns the highest version of a template.
func (r *TemplateRepository) GetLatest(ctx context.Context, id string) (*models.WorkflowTemplate, error) {
	var version sql.NullInt64

	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(version) FROM workflow_templates WHERE id = $1", id,
	).Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest template version: %w", err)
	}

	if !version.Valid {
		return nil, persistence.ErrTemplateNotFound
	}

	return r.GetVersion(ctx, id, int(version.Int64))
}

// List returns the latest version of every template owned by the organization,
// optionally narrowed to a department.
func (r *TemplateRepository) List(ctx context.Context, organizationID string, departmentID *string) ([]*models.WorkflowTemplate, error) {
	query := `
		SELECT
			t.id
		  , t.version
		  , t.organization_id
		  , t.department_id
		  , t.name
		  , t.description
		  , t.trigger_type
		  , t.active
		  , t.initial_step
		  , t.attribute_schema
		  , t.created_at
		  , t.updated_at
		FROM workflow_templates t
		JOIN (
			SELECT id, MAX(version) AS version
			FROM workflow_templates
			GROUP BY id
		) latest ON latest.id = t.id AND latest.version = t.version
		WHERE t.organization_id = $1
		  AND ($2::VARCHAR IS NULL OR t.department_id = $2)
		ORDER BY t.name
	`

	rows, err := r.db.QueryContext(ctx, query, organizationID, departmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.WorkflowTemplate, 0)

	for rows.Next() {
		template, err := r.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		err = r.loadSteps(ctx, template)
		if err != nil {
			return nil, err
		}

		templates = append(templates, template)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TemplateRepository) scanTemplate(row rowScanner) (*models.WorkflowTemplate, error) {
	var (
		template   models.WorkflowTemplate
		schemaJSON []byte
	)

	err := row.Scan(
		&template.ID,
		&template.Version,
		&template.OrganizationID,
		&template.DepartmentID,
		&template.Name,
		&template.Description,
		&template.TriggerType,
		&template.Active,
		&template.InitialStep,
		&schemaJSON,
		&template.CreatedAt,
		&template.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(schemaJSON) > 0 {
		err = json.Unmarshal(schemaJSON, &template.AttributeSchema)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribute schema: %w", err)
		}
	}

	return &template, nil
}

func (r *TemplateRepository) loadSteps(ctx context.Context, template *models.WorkflowTemplate) error {
	stepQuery := `
		SELECT name, display_order, description, all_conditions_must_match
		FROM template_steps
		WHERE template_id = $1 AND template_version = $2
		ORDER BY display_order, name
	`

	rows, err := r.db.QueryContext(ctx, stepQuery, template.ID, template.Version)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	template.Steps = make([]*models.WorkflowStep, 0)

	for rows.Next() {
		var step models.WorkflowStep

		err = rows.Scan(&step.Name, &step.Order, &step.Description, &step.AllConditionsMustMatch)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		template.Steps = append(template.Steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating steps: %w", err)
	}

	for _, step := range template.Steps {
		err = r.loadStepChildren(ctx, template, step)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *TemplateRepository) loadStepChildren(ctx context.Context, template *models.WorkflowTemplate, step *models.WorkflowStep) error {
	err := r.loadConditions(ctx, template, step)
	if err != nil {
		return err
	}

	err = r.loadActions(ctx, template, step)
	if err != nil {
		return err
	}

	return r.loadTransitions(ctx, template, step)
}

func (r *TemplateRepository) loadConditions(ctx context.Context, template *models.WorkflowTemplate, step *models.WorkflowStep) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payload
		FROM step_conditions
		WHERE template_id = $1 AND template_version = $2 AND step_name = $3
		ORDER BY position
	`, template.ID, template.Version, step.Name)
	if err != nil {
		return fmt.Errorf("failed to query conditions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	step.Conditions = make([]*models.Condition, 0)

	for rows.Next() {
		var payload []byte

		err = rows.Scan(&payload)
		if err != nil {
			return fmt.Errorf("failed to scan condition: %w", err)
		}

		var condition models.Condition

		err = json.Unmarshal(payload, &condition)
		if err != nil {
			return fmt.Errorf("failed to unmarshal condition: %w", err)
		}

		step.Conditions = append(step.Conditions, &condition)
	}

	return rows.Err()
}

func (r *TemplateRepository) loadActions(ctx context.Context, template *models.WorkflowTemplate, step *models.WorkflowStep) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT kind, mode, approver_role, member_id
		FROM step_actions
		WHERE template_id = $1 AND template_version = $2 AND step_name = $3
		ORDER BY position
	`, template.ID, template.Version, step.Name)
	if err != nil {
		return fmt.Errorf("failed to query actions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	step.Actions = make([]*models.Action, 0)

	for rows.Next() {
		var (
			action models.Action
			role   sql.NullString
			member sql.NullString
		)

		err = rows.Scan(&action.Kind, &action.Mode, &role, &member)
		if err != nil {
			return fmt.Errorf("failed to scan action: %w", err)
		}

		action.ApproverRole = role.String
		action.MemberID = member.String

		step.Actions = append(step.Actions, &action)
	}

	return rows.Err()
}

func (r *TemplateRepository) loadTransitions(ctx context.Context, template *models.WorkflowTemplate, step *models.WorkflowStep) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT on_outcome, to_step, terminal_status
		FROM step_transitions
		WHERE template_id = $1 AND template_version = $2 AND step_name = $3
		ORDER BY on_outcome
	`, template.ID, template.Version, step.Name)
	if err != nil {
		return fmt.Errorf("failed to query transitions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	step.Transitions = make([]*models.Transition, 0)

	for rows.Next() {
		var (
			transition models.Transition
			toStep     sql.NullString
			terminal   sql.NullString
		)

		err = rows.Scan(&transition.OnOutcome, &toStep, &terminal)
		if err != nil {
			return fmt.Errorf("failed to scan transition: %w", err)
		}

		transition.ToStep = toStep.String

		if terminal.Valid {
			status := models.InstanceStatus(terminal.String)
			transition.Terminal = &status
		}

		step.Transitions = append(step.Transitions, &transition)
	}

	return rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}

	return &s
}
