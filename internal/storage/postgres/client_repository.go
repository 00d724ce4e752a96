package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

const (
	opTimeout = 5 * time.Second
)

type clientRepository struct {
	db *sql.DB
}

// NewClientRepository создаёт PostgreSQL-реализацию ClientRepository.
func NewClientRepository(store *Store) domain.ClientRepository {
	return &clientRepository{db: store.DB()}
}

func (r *clientRepository) Create(client domain.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (
			id, company, tax_id, visible, dossier_complete, last_verified_at, version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`,
		client.ID, client.Company, client.TaxID, client.Visible,
		client.DossierComplete, nullTime(client.LastVerifiedAt), client.Version, client.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("client %s: %w", client.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert client: %w", err)
	}

	return nil
}

func (r *clientRepository) Get(id string) (domain.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	client, err := scanClient(r.db.QueryRowContext(ctx, `
		SELECT id, company, tax_id, visible, dossier_complete, last_verified_at, version, created_at
		FROM clients
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Client{}, fmt.Errorf("client %s: %w", id, domain.ErrNotFound)
		}
		return domain.Client{}, fmt.Errorf("select client: %w", err)
	}

	return client, nil
}

func (r *clientRepository) ListVisible() ([]domain.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, company, tax_id, visible, dossier_complete, last_verified_at, version, created_at
		FROM clients
		WHERE visible
		ORDER BY company ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list visible clients: %w", err)
	}
	defer rows.Close()

	clients := make([]domain.Client, 0)
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan client row: %w", err)
		}
		clients = append(clients, client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate client rows: %w", err)
	}

	return clients, nil
}

func (r *clientRepository) Save(client domain.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE clients
		SET company = $1,
		    tax_id = $2,
		    visible = $3,
		    dossier_complete = $4,
		    last_verified_at = $5,
		    version = version + 1
		WHERE id = $6
		  AND version = $7
	`,
		client.Company,
		client.TaxID,
		client.Visible,
		client.DossierComplete,
		nullTime(client.LastVerifiedAt),
		client.ID,
		client.Version,
	)
	if err != nil {
		return fmt.Errorf("update client: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := rowExistsTx(ctx, tx, `SELECT id FROM clients WHERE id = $1`, client.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			return fmt.Errorf("client %s: %w", client.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("client %s: %w", client.ID, domain.ErrVersionConflict)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save client: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (domain.Client, error) {
	var (
		client       domain.Client
		lastVerified sql.NullTime
	)
	if err := row.Scan(
		&client.ID, &client.Company, &client.TaxID, &client.Visible,
		&client.DossierComplete, &lastVerified, &client.Version, &client.CreatedAt,
	); err != nil {
		return domain.Client{}, err
	}
	if lastVerified.Valid {
		client.LastVerifiedAt = lastVerified.Time.UTC()
	}
	return client, nil
}

// nullTime преобразует нулевое время в SQL NULL.
func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func rowExistsTx(ctx context.Context, tx *sql.Tx, query, id string) (bool, error) {
	var found string
	err := tx.QueryRowContext(ctx, query, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check row exists: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ domain.ClientRepository = (*clientRepository)(nil)
