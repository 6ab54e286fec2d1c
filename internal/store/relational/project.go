package relational

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type projectStore struct {
	q db.Querier
}

func newProjectStore(q db.Querier) ProjectStore { return &projectStore{q: q} }

func (s *projectStore) Create(ctx context.Context, p model.Project) (model.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO projects (id, tenant_id, owner_id, domain_template, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, tenant_id, owner_id, domain_template, language, created_at`

	row := s.q.QueryRow(ctx, query, p.ID, p.TenantID, p.OwnerID, p.DomainTemplate, p.Language, p.CreatedAt)
	return scanProject(row)
}

func (s *projectStore) GetByID(ctx context.Context, id string) (model.Project, error) {
	const query = `
		SELECT id, tenant_id, owner_id, domain_template, language, created_at
		FROM projects WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Project{}, ErrNotFound
		}
		return model.Project{}, err
	}
	return project, nil
}

func (s *projectStore) Delete(ctx context.Context, id string) error {
	_, err := s.q.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return err
}

func scanProject(row pgx.Row) (model.Project, error) {
	var p model.Project
	err := row.Scan(&p.ID, &p.TenantID, &p.OwnerID, &p.DomainTemplate, &p.Language, &p.CreatedAt)
	return p, err
}
