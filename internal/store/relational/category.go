package relational

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type categoryStore struct {
	q db.Querier
}

func newCategoryStore(q db.Querier) CategoryStore { return &categoryStore{q: q} }

func (s *categoryStore) Create(ctx context.Context, c model.Category) (model.Category, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	const query = `
		INSERT INTO categories (id, project_id, name, definition, is_central)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, project_id, name, definition, is_central`

	row := s.q.QueryRow(ctx, query, c.ID, c.ProjectID, c.Name, c.Definition, c.IsCentral)
	return scanCategory(row)
}

func (s *categoryStore) GetByID(ctx context.Context, id string) (model.Category, error) {
	const query = `
		SELECT id, project_id, name, definition, is_central
		FROM categories WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Category{}, ErrNotFound
		}
		return model.Category{}, err
	}
	return category, nil
}

func (s *categoryStore) ListByProject(ctx context.Context, projectID string) ([]model.Category, error) {
	const query = `
		SELECT id, project_id, name, definition, is_central
		FROM categories WHERE project_id = $1 ORDER BY name`

	rows, err := s.q.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

func (s *categoryStore) SetCentral(ctx context.Context, categoryID string, isCentral bool) error {
	tag, err := s.q.Exec(ctx, `UPDATE categories SET is_central = $2 WHERE id = $1`, categoryID, isCentral)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCategory(row pgx.Row) (model.Category, error) {
	var c model.Category
	err := row.Scan(&c.ID, &c.ProjectID, &c.Name, &c.Definition, &c.IsCentral)
	return c, err
}
