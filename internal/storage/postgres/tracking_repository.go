package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type trackingRepository struct {
	db *sql.DB
}

// NewTrackingRepository создаёт PostgreSQL-реализацию TrackingRepository.
func NewTrackingRepository(store *Store) domain.TrackingRepository {
	return &trackingRepository{db: store.DB()}
}

func (r *trackingRepository) Create(tracking domain.ShipmentTracking) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	now := time.Now().UTC()
	if tracking.CreatedAt.IsZero() {
		tracking.CreatedAt = now
	}
	if tracking.UpdatedAt.IsZero() {
		tracking.UpdatedAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipment_trackings (
			id, shipment_id, step_number, status, finished_at, version, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		tracking.ID, tracking.ShipmentID, tracking.StepNumber, string(tracking.Status),
		nullTime(tracking.FinishedAt), tracking.Version, tracking.CreatedAt, tracking.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tracking %s/%d: %w", tracking.ShipmentID, tracking.StepNumber, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert tracking: %w", err)
	}

	return nil
}

func (r *trackingRepository) Get(shipmentID string, stepNumber int) (domain.ShipmentTracking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tracking, err := scanTracking(r.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, step_number, status, finished_at, version, created_at, updated_at
		FROM shipment_trackings
		WHERE shipment_id = $1 AND step_number = $2
	`, shipmentID, stepNumber))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ShipmentTracking{}, fmt.Errorf("tracking %s/%d: %w", shipmentID, stepNumber, domain.ErrNotFound)
		}
		return domain.ShipmentTracking{}, fmt.Errorf("select tracking: %w", err)
	}

	return tracking, nil
}

func (r *trackingRepository) GetByID(id string) (domain.ShipmentTracking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tracking, err := scanTracking(r.db.QueryRowContext(ctx, `
		SELECT id, shipment_id, step_number, status, finished_at, version, created_at, updated_at
		FROM shipment_trackings
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ShipmentTracking{}, fmt.Errorf("tracking %s: %w", id, domain.ErrNotFound)
		}
		return domain.ShipmentTracking{}, fmt.Errorf("select tracking by id: %w", err)
	}

	return tracking, nil
}

func (r *trackingRepository) ListByShipment(shipmentID string) ([]domain.ShipmentTracking, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, shipment_id, step_number, status, finished_at, version, created_at, updated_at
		FROM shipment_trackings
		WHERE shipment_id = $1
		ORDER BY step_number ASC
	`, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list trackings: %w", err)
	}
	defer rows.Close()

	trackings := make([]domain.ShipmentTracking, 0)
	for rows.Next() {
		tracking, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking row: %w", err)
		}
		trackings = append(trackings, tracking)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking rows: %w", err)
	}

	return trackings, nil
}

func (r *trackingRepository) Save(tracking domain.ShipmentTracking) error {
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
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save tracking: %w", err)
	}

	return nil
}

// saveTrackingTx выполняет обновление записи отслеживания внутри переданной
// транзакции. Используется также при атомарной записи ревизии.
func saveTrackingTx(ctx context.Context, tx *sql.Tx, tracking domain.ShipmentTracking) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE shipment_trackings
		SET status = $1,
		    finished_at = $2,
		    version = version + 1,
		    updated_at = $3
		WHERE id = $4
		  AND version = $5
	`,
		string(tracking.Status),
		nullTime(tracking.FinishedAt),
		tracking.UpdatedAt,
		tracking.ID,
		tracking.Version,
	)
	if err != nil {
		return fmt.Errorf("update tracking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := rowExistsTx(ctx, tx, `SELECT id FROM shipment_trackings WHERE id = $1`, tracking.ID)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("tracking %s: %w", tracking.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("tracking %s: %w", tracking.ID, domain.ErrVersionConflict)
	}

	return nil
}

func scanTracking(row rowScanner) (domain.ShipmentTracking, error) {
	var (
		tracking domain.ShipmentTracking
		status   string
		finished sql.NullTime
	)
	if err := row.Scan(
		&tracking.ID, &tracking.ShipmentID, &tracking.StepNumber, &status,
		&finished, &tracking.Version, &tracking.CreatedAt, &tracking.UpdatedAt,
	); err != nil {
		return domain.ShipmentTracking{}, err
	}
	tracking.Status = domain.TrackingStatus(status)
	if finished.Valid {
		tracking.FinishedAt = finished.Time.UTC()
	}
	return tracking, nil
}

var _ domain.TrackingRepository = (*trackingRepository)(nil)
