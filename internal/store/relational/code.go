package relational

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type codeStore struct {
	q db.Querier
}

func newCodeStore(q db.Querier) CodeStore { return &codeStore{q: q} }

// GetOrCreate matches on the project-scoped, case-insensitive, trimmed
// label. Coding the same concept twice across fragments must resolve to the
// same Code row instead of duplicating it.
func (s *codeStore) GetOrCreate(ctx context.Context, projectID, label, definition, createdBy string) (model.Code, error) {
	label = strings.TrimSpace(label)

	const selectQuery = `
		SELECT id, project_id, label, definition, category_id, created_by
		FROM codes WHERE project_id = $1 AND lower(label) = lower($2)`

	row := s.q.QueryRow(ctx, selectQuery, projectID, label)
	existing, err := scanCode(row)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return model.Code{}, err
	}

	const insertQuery = `
		INSERT INTO codes (id, project_id, label, definition, created_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, lower(label)) DO UPDATE SET label = codes.label
		RETURNING id, project_id, label, definition, category_id, created_by`

	row = s.q.QueryRow(ctx, insertQuery, uuid.NewString(), projectID, label, definition, createdBy)
	return scanCode(row)
}

func (s *codeStore) GetByID(ctx context.Context, id string) (model.Code, error) {
	const query = `
		SELECT id, project_id, label, definition, category_id, created_by
		FROM codes WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	code, err := scanCode(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Code{}, ErrNotFound
		}
		return model.Code{}, err
	}
	return code, nil
}

func (s *codeStore) ListByProject(ctx context.Context, projectID string) ([]model.Code, error) {
	const query = `
		SELECT id, project_id, label, definition, category_id, created_by
		FROM codes WHERE project_id = $1 ORDER BY label`

	rows, err := s.q.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []model.Code
	for rows.Next() {
		code, err := scanCode(rows)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

func (s *codeStore) SetCategory(ctx context.Context, codeID string, categoryID *string) error {
	tag, err := s.q.Exec(ctx, `UPDATE codes SET category_id = $2 WHERE id = $1`, codeID, categoryID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanCode(row pgx.Row) (model.Code, error) {
	var c model.Code
	err := row.Scan(&c.ID, &c.ProjectID, &c.Label, &c.Definition, &c.CategoryID, &c.CreatedBy)
	return c, err
}
