package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type verificationRepository struct {
	db *sql.DB
}

// NewVerificationRepository создаёт PostgreSQL-реализацию VerificationRepository.
func NewVerificationRepository(store *Store) domain.VerificationRepository {
	return &verificationRepository{db: store.DB()}
}

func (r *verificationRepository) Append(verification domain.ExternalListVerification) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if verification.VerifiedAt.IsZero() {
		verification.VerifiedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO external_list_verifications (
			id, client_id, tax_id, in_definitive_list, in_presumed_list,
			method, status, from_cache, notes, verified_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		verification.ID, verification.ClientID, verification.TaxID,
		verification.InDefinitiveList, verification.InPresumedList,
		string(verification.Method), string(verification.Status),
		verification.FromCache, verification.Notes, verification.VerifiedAt,
	)
	if err != nil {
		return fmt.Errorf("append verification: %w", err)
	}

	return nil
}

func (r *verificationRepository) ListByClient(clientID string, limit int) ([]domain.ExternalListVerification, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `
		SELECT id, client_id, tax_id, in_definitive_list, in_presumed_list,
		       method, status, from_cache, notes, verified_at
		FROM external_list_verifications
		WHERE client_id = $1
		ORDER BY verified_at DESC, id DESC
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
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	verifications := make([]domain.ExternalListVerification, 0)
	for rows.Next() {
		var (
			verification domain.ExternalListVerification
			method       string
			status       string
		)
		if err := rows.Scan(
			&verification.ID, &verification.ClientID, &verification.TaxID,
			&verification.InDefinitiveList, &verification.InPresumedList,
			&method, &status, &verification.FromCache,
			&verification.Notes, &verification.VerifiedAt,
		); err != nil {
			return nil, fmt.Errorf("scan verification row: %w", err)
		}
		verification.Method = domain.VerificationMethod(method)
		verification.Status = domain.VerificationStatus(status)
		verifications = append(verifications, verification)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate verification rows: %w", err)
	}

	return verifications, nil
}

var _ domain.VerificationRepository = (*verificationRepository)(nil)
