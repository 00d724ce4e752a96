package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type revisionRepository struct {
	db *sql.DB
}

// NewRevisionRepository создаёт PostgreSQL-реализацию RevisionRepository.
func NewRevisionRepository(store *Store) domain.RevisionRepository {
	return &revisionRepository{db: store.DB()}
}

func (r *revisionRepository) Append(revision domain.Revision) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, appendRevisionSQL, appendRevisionArgs(revision)...); err != nil {
		return fmt.Errorf("append revision: %w", err)
	}

	return nil
}

// AppendWithTracking записывает ревизию и обновляет запись отслеживания
// в одной транзакции: либо сохраняются обе, либо ни одна.
func (r *revisionRepository) AppendWithTracking(revision domain.Revision, tracking domain.ShipmentTracking) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if tracking.UpdatedAt.IsZero() {
		tracking.UpdatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = saveTrackingTx(ctx, tx, tracking)
	if err != nil {
		return fmt.Errorf("save tracking %s: %w", tracking.ID, err)
	}

	if _, err = tx.ExecContext(ctx, appendRevisionSQL, appendRevisionArgs(revision)...); err != nil {
		return fmt.Errorf("append revision: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit revision with tracking: %w", err)
	}

	return nil
}

func (r *revisionRepository) ListByTracking(trackingID string) ([]domain.Revision, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tracking_id, assigned_to, step_number, notes, status, occurred_at, created_at
		FROM tracking_revisions
		WHERE tracking_id = $1
		ORDER BY created_at DESC, id DESC
	`, trackingID)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	revisions := make([]domain.Revision, 0)
	for rows.Next() {
		var revision domain.Revision
		if err := rows.Scan(
			&revision.ID, &revision.TrackingID, &revision.AssignedTo, &revision.StepNumber,
			&revision.Notes, &revision.Status, &revision.OccurredAt, &revision.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan revision row: %w", err)
		}
		revisions = append(revisions, revision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revision rows: %w", err)
	}

	return revisions, nil
}

const appendRevisionSQL = `
	INSERT INTO tracking_revisions (
		id, tracking_id, assigned_to, step_number, notes, status, occurred_at, created_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`

func appendRevisionArgs(revision domain.Revision) []any {
	now := time.Now().UTC()
	if revision.OccurredAt.IsZero() {
		revision.OccurredAt = now
	}
	if revision.CreatedAt.IsZero() {
		revision.CreatedAt = now
	}
	return []any{
		revision.ID, revision.TrackingID, revision.AssignedTo, revision.StepNumber,
		revision.Notes, revision.Status, revision.OccurredAt, revision.CreatedAt,
	}
}

var _ domain.RevisionRepository = (*revisionRepository)(nil)
