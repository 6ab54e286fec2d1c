package relational

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type theoryStore struct {
	q db.Querier
}

func newTheoryStore(q db.Querier) TheoryStore { return &theoryStore{q: q} }

func (s *theoryStore) Create(ctx context.Context, t model.Theory) (model.Theory, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	if t.Status == "" {
		t.Status = model.TheoryDraft
	}

	modelJSON, err := json.Marshal(t.ModelJSON)
	if err != nil {
		return model.Theory{}, err
	}
	propositions, err := json.Marshal(t.Propositions)
	if err != nil {
		return model.Theory{}, err
	}
	validation, err := json.Marshal(t.Validation)
	if err != nil {
		return model.Theory{}, err
	}
	gaps, err := json.Marshal(t.Gaps)
	if err != nil {
		return model.Theory{}, err
	}

	const query = `
		INSERT INTO theories
			(id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at`

	row := s.q.QueryRow(ctx, query,
		t.ID, t.ProjectID, t.Version, modelJSON, propositions, validation, gaps,
		t.ConfidenceScore, string(t.Status), t.CreatedAt,
	)
	return scanTheory(row)
}

func (s *theoryStore) GetByID(ctx context.Context, id string) (model.Theory, error) {
	const query = `
		SELECT id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at
		FROM theories WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	theory, err := scanTheory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Theory{}, ErrNotFound
		}
		return model.Theory{}, err
	}
	return theory, nil
}

func (s *theoryStore) GetLatestByProject(ctx context.Context, projectID string) (model.Theory, error) {
	const query = `
		SELECT id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at
		FROM theories WHERE project_id = $1 ORDER BY version DESC LIMIT 1`

	row := s.q.QueryRow(ctx, query, projectID)
	theory, err := scanTheory(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Theory{}, ErrNotFound
		}
		return model.Theory{}, err
	}
	return theory, nil
}

func (s *theoryStore) ListByProject(ctx context.Context, projectID string) ([]model.Theory, error) {
	const query = `
		SELECT id, project_id, version, model_json, propositions, validation, gaps, confidence_score, status, created_at
		FROM theories WHERE project_id = $1 ORDER BY version`

	rows, err := s.q.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var theories []model.Theory
	for rows.Next() {
		theory, err := scanTheory(rows)
		if err != nil {
			return nil, err
		}
		theories = append(theories, theory)
	}
	return theories, rows.Err()
}

func scanTheory(row pgx.Row) (model.Theory, error) {
	var t model.Theory
	var modelJSON, propositions, validation, gaps []byte
	var status string

	err := row.Scan(&t.ID, &t.ProjectID, &t.Version, &modelJSON, &propositions, &validation, &gaps,
		&t.ConfidenceScore, &status, &t.CreatedAt)
	if err != nil {
		return model.Theory{}, err
	}
	t.Status = model.TheoryStatus(status)

	if len(modelJSON) > 0 {
		if err := json.Unmarshal(modelJSON, &t.ModelJSON); err != nil {
			return model.Theory{}, err
		}
	}
	if len(propositions) > 0 {
		if err := json.Unmarshal(propositions, &t.Propositions); err != nil {
			return model.Theory{}, err
		}
	}
	if len(validation) > 0 {
		if err := json.Unmarshal(validation, &t.Validation); err != nil {
			return model.Theory{}, err
		}
	}
	if len(gaps) > 0 {
		if err := json.Unmarshal(gaps, &t.Gaps); err != nil {
			return model.Theory{}, err
		}
	}
	return t, nil
}
