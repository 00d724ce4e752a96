package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type stepAssignmentRepository struct {
	db *sql.DB
}

// NewStepAssignmentRepository создаёт PostgreSQL-реализацию StepAssignmentRepository.
func NewStepAssignmentRepository(store *Store) domain.StepAssignmentRepository {
	return &stepAssignmentRepository{db: store.DB()}
}

func (r *stepAssignmentRepository) Create(assignment domain.ClientStepAssignment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO client_step_assignments (
			client_id, step_id, sort_order, active, created_at
		) VALUES ($1,$2,$3,$4,$5)
	`,
		assignment.ClientID, assignment.StepID, assignment.Order,
		assignment.Active, assignment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("assignment %s/%s: %w", assignment.ClientID, assignment.StepID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert step assignment: %w", err)
	}

	return nil
}

func (r *stepAssignmentRepository) Get(clientID, stepID string) (domain.ClientStepAssignment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var assignment domain.ClientStepAssignment
	err := r.db.QueryRowContext(ctx, `
		SELECT client_id, step_id, sort_order, active, created_at
		FROM client_step_assignments
		WHERE client_id = $1 AND step_id = $2
	`, clientID, stepID).Scan(
		&assignment.ClientID, &assignment.StepID, &assignment.Order,
		&assignment.Active, &assignment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ClientStepAssignment{}, fmt.Errorf("assignment %s/%s: %w", clientID, stepID, domain.ErrNotFound)
		}
		return domain.ClientStepAssignment{}, fmt.Errorf("select step assignment: %w", err)
	}

	return assignment, nil
}

func (r *stepAssignmentRepository) ListByClient(clientID string) ([]domain.ClientStepAssignment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT client_id, step_id, sort_order, active, created_at
		FROM client_step_assignments
		WHERE client_id = $1
		ORDER BY sort_order ASC, step_id ASC
	`, clientID)
	if err != nil {
		return nil, fmt.Errorf("list step assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]domain.ClientStepAssignment, 0)
	for rows.Next() {
		var assignment domain.ClientStepAssignment
		if err := rows.Scan(
			&assignment.ClientID, &assignment.StepID, &assignment.Order,
			&assignment.Active, &assignment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step assignment row: %w", err)
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step assignment rows: %w", err)
	}

	return assignments, nil
}

func (r *stepAssignmentRepository) Save(assignment domain.ClientStepAssignment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE client_step_assignments
		SET sort_order = $1,
		    active = $2
		WHERE client_id = $3
		  AND step_id = $4
	`, assignment.Order, assignment.Active, assignment.ClientID, assignment.StepID)
	if err != nil {
		return fmt.Errorf("update step assignment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("assignment %s/%s: %w", assignment.ClientID, assignment.StepID, domain.ErrNotFound)
	}

	return nil
}

func (r *stepAssignmentRepository) Delete(clientID, stepID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM client_step_assignments
		WHERE client_id = $1 AND step_id = $2
	`, clientID, stepID)
	if err != nil {
		return fmt.Errorf("delete step assignment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("assignment %s/%s: %w", clientID, stepID, domain.ErrNotFound)
	}

	return nil
}

func (r *stepAssignmentRepository) DeleteExcept(clientID string, keepStepIDs []string) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if keepStepIDs == nil {
		keepStepIDs = []string{}
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM client_step_assignments
		WHERE client_id = $1
		  AND step_id <> ALL($2)
	`, clientID, keepStepIDs)
	if err != nil {
		return 0, fmt.Errorf("delete step assignments except kept: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(affected), nil
}

var _ domain.StepAssignmentRepository = (*stepAssignmentRepository)(nil)
