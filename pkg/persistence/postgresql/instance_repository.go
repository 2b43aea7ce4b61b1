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

// InstanceRepository handles workflow instance storage. Updates are guarded by
// a compare-and-swap on row_version so concurrent writers never both win.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// Create persists a new instance with its executions.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	attributesJSON, err := json.Marshal(instance.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		INSERT INTO workflow_instances (id, organization_id, department_id,
			template_id, template_version, entity_type, entity_id, current_step,
			status, blocked_reason, attributes, row_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err = tx.ExecContext(ctx, query,
		instance.ID,
		instance.OrganizationID,
		instance.DepartmentID,
		instance.TemplateID,
		instance.TemplateVersion,
		instance.EntityType,
		instance.EntityID,
		nullable(instance.CurrentStep),
		instance.Status,
		instance.BlockedReason,
		attributesJSON,
		instance.Revision,
		instance.CreatedAt,
		instance.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return persistence.ErrInstanceExists
		}

		return fmt.Errorf("failed to insert instance: %w", err)
	}

	err = r.saveExecutions(ctx, tx, instance)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID returns an instance with its full execution history.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , department_id
		  , template_id
		  , template_version
		  , entity_type
		  , entity_id
		  , current_step
		  , status
		  , blocked_reason
		  , attributes
		  , row_version
		  , created_at
		  , updated_at
		FROM workflow_instances
		WHERE id = $1
	`

	instance, err := r.scanInstance(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrInstanceNotFound
		}

		return nil, fmt.Errorf("failed to scan instance: %w", err)
	}

	err = r.loadExecutions(ctx, instance)
	if err != nil {
		return nil, err
	}

	return instance, nil
}

// Update persists a mutation only when the stored row_version still equals
// expectedRevision. Executions are upserted and decisions appended; neither is
// ever rewritten once present.
func (r *InstanceRepository) Update(ctx context.Context, instance *models.WorkflowInstance, expectedRevision int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	attributesJSON, err := json.Marshal(instance.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	query := `
		UPDATE workflow_instances SET
			current_step = $3,
			status = $4,
			blocked_reason = $5,
			attributes = $6,
			row_version = row_version + 1,
			updated_at = $7
		WHERE id = $1 AND row_version = $2
	`

	result, err := tx.ExecContext(ctx, query,
		instance.ID,
		expectedRevision,
		nullable(instance.CurrentStep),
		instance.Status,
		instance.BlockedReason,
		attributesJSON,
		instance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		err = persistence.ErrRevisionConflict

		return err
	}

	err = r.saveExecutions(ctx, tx, instance)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	instance.Revision = expectedRevision + 1

	return nil
}

// ListBlocked returns in-progress instances waiting on approver resolution.
func (r *InstanceRepository) ListBlocked(ctx context.Context) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT
			id
		  , organization_id
		  , department_id
		  , template_id
		  , template_version
		  , entity_type
		  , entity_id
		  , current_step
		  , status
		  , blocked_reason
		  , attributes
		  , row_version
		  , created_at
		  , updated_at
		FROM workflow_instances
		WHERE status = 'IN_PROGRESS' AND blocked_reason <> ''
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked instances: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		instance, err := r.scanInstance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, instance)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	for _, instance := range instances {
		err = r.loadExecutions(ctx, instance)
		if err != nil {
			return nil, err
		}
	}

	return instances, nil
}

func (r *InstanceRepository) scanInstance(row rowScanner) (*models.WorkflowInstance, error) {
	var (
		instance       models.WorkflowInstance
		currentStep    sql.NullString
		attributesJSON []byte
	)

	err := row.Scan(
		&instance.ID,
		&instance.OrganizationID,
		&instance.DepartmentID,
		&instance.TemplateID,
		&instance.TemplateVersion,
		&instance.EntityType,
		&instance.EntityID,
		&currentStep,
		&instance.Status,
		&instance.BlockedReason,
		&attributesJSON,
		&instance.Revision,
		&instance.CreatedAt,
		&instance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.CurrentStep = currentStep.String

	if len(attributesJSON) > 0 {
		err = json.Unmarshal(attributesJSON, &instance.Attributes)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}

	return &instance, nil
}

func (r *InstanceRepository) saveExecutions(ctx context.Context, tx *sql.Tx, instance *models.WorkflowInstance) error {
	for _, execution := range instance.Executions {
		actorsJSON, err := json.Marshal(execution.RequiredActors)
		if err != nil {
			return fmt.Errorf("failed to marshal required actors: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_executions (id, instance_id, step_name, required_actors, mode, outcome, entered_at, resolved_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				outcome = EXCLUDED.outcome,
				resolved_at = EXCLUDED.resolved_at
		`, execution.ID, instance.ID, execution.StepName, actorsJSON,
			execution.Mode, execution.Outcome, execution.EnteredAt, execution.ResolvedAt)
		if err != nil {
			return fmt.Errorf("failed to save execution %s: %w", execution.ID, err)
		}

		for _, decision := range execution.Decisions {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_decisions (execution_id, actor_id, decision, note, decided_at)
				VALUES ($1, $2, $3, $4, $5)
				ON CONFLICT (execution_id, actor_id) DO NOTHING
			`, execution.ID, decision.ActorID, decision.Decision, decision.Note, decision.DecidedAt)
			if err != nil {
				return fmt.Errorf("failed to save decision by %s: %w", decision.ActorID, err)
			}
		}
	}

	return nil
}

func (r *InstanceRepository) loadExecutions(ctx context.Context, instance *models.WorkflowInstance) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, step_name, required_actors, mode, outcome, entered_at, resolved_at
		FROM step_executions
		WHERE instance_id = $1
		ORDER BY entered_at, id
	`, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query executions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instance.Executions = make([]*models.StepExecution, 0)

	for rows.Next() {
		var (
			execution  models.StepExecution
			actorsJSON []byte
			outcome    sql.NullString
		)

		err = rows.Scan(
			&execution.ID,
			&execution.StepName,
			&actorsJSON,
			&execution.Mode,
			&outcome,
			&execution.EnteredAt,
			&execution.ResolvedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to scan execution: %w", err)
		}

		err = json.Unmarshal(actorsJSON, &execution.RequiredActors)
		if err != nil {
			return fmt.Errorf("failed to unmarshal required actors: %w", err)
		}

		if outcome.Valid {
			value := models.Outcome(outcome.String)
			execution.Outcome = &value
		}

		instance.Executions = append(instance.Executions, &execution)
	}

	err = rows.Err()
	if err != nil {
		return fmt.Errorf("error iterating executions: %w", err)
	}

	for _, execution := range instance.Executions {
		err = r.loadDecisions(ctx, execution)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *InstanceRepository) loadDecisions(ctx context.Context, execution *models.StepExecution) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT actor_id, decision, note, decided_at
		FROM step_decisions
		WHERE execution_id = $1
		ORDER BY decided_at, actor_id
	`, execution.ID)
	if err != nil {
		return fmt.Errorf("failed to query decisions: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	execution.Decisions = make([]*models.Decision, 0)

	for rows.Next() {
		var decision models.Decision

		err = rows.Scan(&decision.ActorID, &decision.Decision, &decision.Note, &decision.DecidedAt)
		if err != nil {
			return fmt.Errorf("failed to scan decision: %w", err)
		}

		execution.Decisions = append(execution.Decisions, &decision)
	}

	return rows.Err()
}
