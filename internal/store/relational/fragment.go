package relational

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type fragmentStore struct {
	q db.Querier
}

func newFragmentStore(q db.Querier) FragmentStore { return &fragmentStore{q: q} }

// CreateBatch inserts fragments in insertion order. Callers are expected to
// have already split the interview's transcript into non-overlapping spans.
func (s *fragmentStore) CreateBatch(ctx context.Context, fragments []model.Fragment) error {
	const query = `
		INSERT INTO fragments
			(id, interview_id, text, start_offset, end_offset, paragraph_index, start_ms, end_ms, speaker_id, embedding_synced)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i := range fragments {
		f := &fragments[i]
		if f.ID == "" {
			f.ID = uuid.NewString()
		}
		if _, err := s.q.Exec(ctx, query,
			f.ID, f.InterviewID, f.Text, f.StartOffset, f.EndOffset,
			f.ParagraphIndex, f.StartMS, f.EndMS, f.SpeakerID, f.EmbeddingSynced,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *fragmentStore) ListByInterview(ctx context.Context, interviewID string) ([]model.Fragment, error) {
	const query = `
		SELECT id, interview_id, text, start_offset, end_offset, paragraph_index, start_ms, end_ms, speaker_id, embedding_synced
		FROM fragments WHERE interview_id = $1 ORDER BY start_offset`

	rows, err := s.q.Query(ctx, query, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFragments(rows)
}

func (s *fragmentStore) ListUnembedded(ctx context.Context, interviewID string) ([]model.Fragment, error) {
	const query = `
		SELECT id, interview_id, text, start_offset, end_offset, paragraph_index, start_ms, end_ms, speaker_id, embedding_synced
		FROM fragments WHERE interview_id = $1 AND embedding_synced = false ORDER BY start_offset`

	rows, err := s.q.Query(ctx, query, interviewID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanFragments(rows)
}

func (s *fragmentStore) MarkEmbeddingSynced(ctx context.Context, fragmentIDs []string) error {
	if len(fragmentIDs) == 0 {
		return nil
	}
	_, err := s.q.Exec(ctx, `UPDATE fragments SET embedding_synced = true WHERE id = ANY($1)`, fragmentIDs)
	return err
}

func scanFragments(rows pgx.Rows) ([]model.Fragment, error) {
	var fragments []model.Fragment
	for rows.Next() {
		var f model.Fragment
		if err := rows.Scan(
			&f.ID, &f.InterviewID, &f.Text, &f.StartOffset, &f.EndOffset,
			&f.ParagraphIndex, &f.StartMS, &f.EndMS, &f.SpeakerID, &f.EmbeddingSynced,
		); err != nil {
			return nil, err
		}
		fragments = append(fragments, f)
	}
	return fragments, rows.Err()
}
