package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/cts/internal/domain"
)

type categoryRepository struct {
	db *sql.DB
}

// NewDocumentCategoryRepository создаёт PostgreSQL-реализацию DocumentCategoryRepository.
func NewDocumentCategoryRepository(store *Store) domain.DocumentCategoryRepository {
	return &categoryRepository{db: store.DB()}
}

func (r *categoryRepository) Create(category domain.DocumentCategory) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO document_categories (
			id, code, name, required, validity_months, sort_order
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		category.ID, category.Code, category.Name,
		category.Required, category.ValidityMonths, category.Order,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("document category %s: %w", category.Code, domain.ErrAlreadyExists)
		}
		return fmt.Errorf("insert document category: %w", err)
	}

	return nil
}

func (r *categoryRepository) Get(id string) (domain.DocumentCategory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var category domain.DocumentCategory
	err := r.db.QueryRowContext(ctx, `
		SELECT id, code, name, required, validity_months, sort_order
		FROM document_categories
		WHERE id = $1
	`, id).Scan(
		&category.ID, &category.Code, &category.Name,
		&category.Required, &category.ValidityMonths, &category.Order,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.DocumentCategory{}, fmt.Errorf("document category %s: %w", id, domain.ErrNotFound)
		}
		return domain.DocumentCategory{}, fmt.Errorf("select document category: %w", err)
	}

	return category, nil
}

func (r *categoryRepository) ListAll() ([]domain.DocumentCategory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, code, name, required, validity_months, sort_order
		FROM document_categories
		ORDER BY sort_order ASC, code ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list document categories: %w", err)
	}
	defer rows.Close()

	categories := make([]domain.DocumentCategory, 0)
	for rows.Next() {
		var category domain.DocumentCategory
		if err := rows.Scan(
			&category.ID, &category.Code, &category.Name,
			&category.Required, &category.ValidityMonths, &category.Order,
		); err != nil {
			return nil, fmt.Errorf("scan document category row: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document category rows: %w", err)
	}

	return categories, nil
}

var _ domain.DocumentCategoryRepository = (*categoryRepository)(nil)
