package relational

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type interviewStore struct {
	q db.Querier
}

func newInterviewStore(q db.Querier) InterviewStore { return &interviewStore{q: q} }

func (s *interviewStore) Create(ctx context.Context, i model.Interview) (model.Interview, error) {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	if i.Status == "" {
		i.Status = model.InterviewPending
	}

	const query = `
		INSERT INTO interviews (id, project_id, status, full_text, word_count, language)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, project_id, status, full_text, word_count, language`

	row := s.q.QueryRow(ctx, query, i.ID, i.ProjectID, string(i.Status), i.FullText, i.WordCount, i.Language)
	return scanInterview(row)
}

func (s *interviewStore) GetByID(ctx context.Context, id string) (model.Interview, error) {
	const query = `
		SELECT id, project_id, status, full_text, word_count, language
		FROM interviews WHERE id = $1`

	row := s.q.QueryRow(ctx, query, id)
	interview, err := scanInterview(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Interview{}, ErrNotFound
		}
		return model.Interview{}, err
	}
	return interview, nil
}

func (s *interviewStore) SetStatus(ctx context.Context, id string, status model.InterviewStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE interviews SET status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *interviewStore) ListByProject(ctx context.Context, projectID string) ([]model.Interview, error) {
	const query = `
		SELECT id, project_id, status, full_text, word_count, language
		FROM interviews WHERE project_id = $1 ORDER BY id`

	rows, err := s.q.Query(ctx, query, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var interviews []model.Interview
	for rows.Next() {
		interview, err := scanInterview(rows)
		if err != nil {
			return nil, err
		}
		interviews = append(interviews, interview)
	}
	return interviews, rows.Err()
}

func scanInterview(row pgx.Row) (model.Interview, error) {
	var i model.Interview
	var status string
	err := row.Scan(&i.ID, &i.ProjectID, &status, &i.FullText, &i.WordCount, &i.Language)
	i.Status = model.InterviewStatus(status)
	return i, err
}
