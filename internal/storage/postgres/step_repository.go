package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type stepRepository struct {
	db *sql.DB
}

// NewStepRepository создаёт PostgreSQL-реализацию StepRepository.
func NewStepRepository(store *Store) domain.StepRepository {
	return &stepRepository{db: store.DB()}
}

func (r *stepRepository) Create(step domain.Step) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO steps (
			id, number, description, applies_inbound, applies_outbound, pinned
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		step.ID, step.Number, step.Description,
		step.AppliesInbound, step.AppliesOutbound, step.Pinned,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("step %s: %w", step.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert step: %w", err)
	}

	return nil
}

func (r *stepRepository) Get(id string) (domain.Step, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var step domain.Step
	err := r.db.QueryRowContext(ctx, `
		SELECT id, number, description, applies_inbound, applies_outbound, pinned
		FROM steps
		WHERE id = $1
	`, id).Scan(
		&step.ID, &step.Number, &step.Description,
		&step.AppliesInbound, &step.AppliesOutbound, &step.Pinned,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Step{}, fmt.Errorf("step %s: %w", id, domain.ErrNotFound)
		}
		return domain.Step{}, fmt.Errorf("select step: %w", err)
	}

	return step, nil
}

func (r *stepRepository) ListAll() ([]domain.Step, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	// Этапы без номера уходят в конец каталога.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, number, description, applies_inbound, applies_outbound, pinned
		FROM steps
		ORDER BY (number = 0) ASC, number ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.Step, 0)
	for rows.Next() {
		var step domain.Step
		if err := rows.Scan(
			&step.ID, &step.Number, &step.Description,
			&step.AppliesInbound, &step.AppliesOutbound, &step.Pinned,
		); err != nil {
			return nil, fmt.Errorf("scan step row: %w", err)
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate step rows: %w", err)
	}

	return steps, nil
}

var _ domain.StepRepository = (*stepRepository)(nil)
