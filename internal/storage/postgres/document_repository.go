package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

const selectDocumentColumns = `
	id, client_id, category_id, name, status, document_date, expiration_date,
	file_name, file_size, reviewed_by, reviewed_at, review_notes, version, created_at
`

type documentRepository struct {
	db *sql.DB
}

// NewDocumentRepository создаёт PostgreSQL-реализацию DocumentRepository.
func NewDocumentRepository(store *Store) domain.DocumentRepository {
	return &documentRepository{db: store.DB()}
}

func (r *documentRepository) Create(document domain.ClientDocument) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if document.CreatedAt.IsZero() {
		document.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO client_documents (
			id, client_id, category_id, name, status, document_date, expiration_date,
			file_name, file_size, reviewed_by, reviewed_at, review_notes, version, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		document.ID, document.ClientID, document.CategoryID, document.Name,
		string(document.Status), nullTime(document.DocumentDate), nullTime(document.ExpirationDate),
		document.FileName, document.FileSize, document.ReviewedBy,
		nullTime(document.ReviewedAt), document.ReviewNotes, document.Version, document.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document %s: %w", document.ID, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert document: %w", err)
	}

	return nil
}

func (r *documentRepository) Get(id string) (domain.ClientDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	document, err := scanDocument(r.db.QueryRowContext(ctx, `
		SELECT `+selectDocumentColumns+`
		FROM client_documents
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ClientDocument{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
		}
		return domain.ClientDocument{}, fmt.Errorf("select document: %w", err)
	}

	return document, nil
}

func (r *documentRepository) ListByClient(clientID string) ([]domain.ClientDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.queryDocuments(ctx, `
		SELECT `+selectDocumentColumns+`
		FROM client_documents
		WHERE client_id = $1
		ORDER BY created_at DESC, id ASC
	`, clientID)
}

func (r *documentRepository) ListByStatus(status domain.DocumentStatus) ([]domain.ClientDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.queryDocuments(ctx, `
		SELECT `+selectDocumentColumns+`
		FROM client_documents
		WHERE status = $1
		ORDER BY created_at DESC, id ASC
	`, string(status))
}

func (r *documentRepository) ListApprovedExpiring(from, to time.Time) ([]domain.ClientDocument, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	return r.queryDocuments(ctx, `
		SELECT `+selectDocumentColumns+`
		FROM client_documents
		WHERE status = $1
		  AND expiration_date IS NOT NULL
		  AND expiration_date >= $2
		  AND expiration_date <= $3
		ORDER BY expiration_date ASC, id ASC
	`, string(domain.DocumentStatusApproved), from, to)
}

func (r *documentRepository) ApprovedCategoryIDs(clientID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT category_id
		FROM client_documents
		WHERE client_id = $1
		  AND status = $2
		ORDER BY category_id ASC
	`, clientID, string(domain.DocumentStatusApproved))
	if err != nil {
		return nil, fmt.Errorf("list approved categories: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan approved category: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approved categories: %w", err)
	}

	return ids, nil
}

func (r *documentRepository) Save(document domain.ClientDocument) error {
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
		UPDATE client_documents
		SET name = $1,
		    status = $2,
		    document_date = $3,
		    expiration_date = $4,
		    file_name = $5,
		    file_size = $6,
		    reviewed_by = $7,
		    reviewed_at = $8,
		    review_notes = $9,
		    version = version + 1
		WHERE id = $10
		  AND version = $11
	`,
		document.Name,
		string(document.Status),
		nullTime(document.DocumentDate),
		nullTime(document.ExpirationDate),
		document.FileName,
		document.FileSize,
		document.ReviewedBy,
		nullTime(document.ReviewedAt),
		document.ReviewNotes,
		document.ID,
		document.Version,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, checkErr := rowExistsTx(ctx, tx, `SELECT id FROM client_documents WHERE id = $1`, document.ID)
		if checkErr != nil {
			err = checkErr
			return err
		}
		if !exists {
			return fmt.Errorf("document %s: %w", document.ID, domain.ErrNotFound)
		}
		return fmt.Errorf("document %s: %w", document.ID, domain.ErrVersionConflict)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save document: %w", err)
	}

	return nil
}

func (r *documentRepository) MarkExpired(today time.Time) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		UPDATE client_documents
		SET status = $1,
		    version = version + 1
		WHERE status IN ($2, $3)
		  AND expiration_date IS NOT NULL
		  AND expiration_date < $4
		RETURNING id
	`,
		string(domain.DocumentStatusExpired),
		string(domain.DocumentStatusPending),
		string(domain.DocumentStatusApproved),
		domain.DateOnly(today),
	)
	if err != nil {
		return nil, fmt.Errorf("mark expired documents: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired document ids: %w", err)
	}

	sort.Strings(ids)
	return ids, nil
}

func (r *documentRepository) queryDocuments(ctx context.Context, query string, args ...any) ([]domain.ClientDocument, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	documents := make([]domain.ClientDocument, 0)
	for rows.Next() {
		document, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		documents = append(documents, document)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document rows: %w", err)
	}

	return documents, nil
}

func scanDocument(row rowScanner) (domain.ClientDocument, error) {
	var (
		document     domain.ClientDocument
		status       string
		documentDate sql.NullTime
		expiration   sql.NullTime
		reviewedAt   sql.NullTime
	)
	if err := row.Scan(
		&document.ID, &document.ClientID, &document.CategoryID, &document.Name,
		&status, &documentDate, &expiration,
		&document.FileName, &document.FileSize, &document.ReviewedBy,
		&reviewedAt, &document.ReviewNotes, &document.Version, &document.CreatedAt,
	); err != nil {
		return domain.ClientDocument{}, err
	}

	document.Status = domain.DocumentStatus(status)
	if documentDate.Valid {
		document.DocumentDate = documentDate.Time.UTC()
	}
	if expiration.Valid {
		document.ExpirationDate = expiration.Time.UTC()
	}
	if reviewedAt.Valid {
		document.ReviewedAt = reviewedAt.Time.UTC()
	}

	return document, nil
}

var _ domain.DocumentRepository = (*documentRepository)(nil)
