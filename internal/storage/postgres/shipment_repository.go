package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type shipmentRepository struct {
	db *sql.DB
}

// NewShipmentRepository создаёт PostgreSQL-реализацию ShipmentRepository.
func NewShipmentRepository(store *Store) domain.ShipmentRepository {
	return &shipmentRepository{db: store.DB()}
}

func (r *shipmentRepository) Create(shipment domain.Shipment) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if shipment.CreatedAt.IsZero() {
		shipment.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO shipments (
			id, client_id, reference, direction, regimen_code, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		shipment.ID, shipment.ClientID, shipment.Reference,
		string(shipment.Direction), shipment.RegimenCode, shipment.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("shipment %s: %w", shipment.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert shipment: %w", err)
	}

	return nil
}

func (r *shipmentRepository) Get(id string) (domain.Shipment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var (
		shipment  domain.Shipment
		direction string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, client_id, reference, direction, regimen_code, created_at
		FROM shipments
		WHERE id = $1
	`, id).Scan(
		&shipment.ID, &shipment.ClientID, &shipment.Reference,
		&direction, &shipment.RegimenCode, &shipment.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Shipment{}, fmt.Errorf("shipment %s: %w", id, domain.ErrNotFound)
		}
		return domain.Shipment{}, fmt.Errorf("select shipment: %w", err)
	}
	shipment.Direction = domain.Direction(direction)

	return shipment, nil
}

func (r *shipmentRepository) ListByClient(clientID string, limit int) ([]domain.Shipment, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, client_id, reference, direction, regimen_code, created_at
		FROM shipments
		WHERE client_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)

	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", clientID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, clientID)
	}
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	shipments := make([]domain.Shipment, 0)
	for rows.Next() {
		var (
			shipment  domain.Shipment
			direction string
		)
		if err := rows.Scan(
			&shipment.ID, &shipment.ClientID, &shipment.Reference,
			&direction, &shipment.RegimenCode, &shipment.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shipment row: %w", err)
		}
		shipment.Direction = domain.Direction(direction)
		shipments = append(shipments, shipment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shipment rows: %w", err)
	}

	return shipments, nil
}

var _ domain.ShipmentRepository = (*shipmentRepository)(nil)
