package relational

import (
	"context"

	"github.com/jackc/pgx/v5"
	"groundedtheory.dev/core/core/db"
	"groundedtheory.dev/core/internal/model"
)

type codeFragmentLinkStore struct {
	q db.Querier
}

func newCodeFragmentLinkStore(q db.Querier) CodeFragmentLinkStore { return &codeFragmentLinkStore{q: q} }

// CreateBatch inserts links idempotently: re-coding a fragment that already
// carries a link to the same code is a no-op, not a duplicate row. Returns
// the number of rows actually inserted.
func (s *codeFragmentLinkStore) CreateBatch(ctx context.Context, links []model.CodeFragmentLink) (int, error) {
	const query = `
		INSERT INTO code_fragment_links (code_id, fragment_id, confidence, source, char_start, char_end, linked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (code_id, fragment_id) DO NOTHING`

	inserted := 0
	for _, l := range links {
		tag, err := s.q.Exec(ctx, query, l.CodeID, l.FragmentID, l.Confidence, string(l.Source), l.CharStart, l.CharEnd, l.LinkedAt)
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func (s *codeFragmentLinkStore) ListByFragment(ctx context.Context, fragmentID string) ([]model.CodeFragmentLink, error) {
	const query = `
		SELECT code_id, fragment_id, confidence, source, char_start, char_end, linked_at
		FROM code_fragment_links WHERE fragment_id = $1`

	rows, err := s.q.Query(ctx, query, fragmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func (s *codeFragmentLinkStore) ListByCode(ctx context.Context, codeID string) ([]model.CodeFragmentLink, error) {
	const query = `
		SELECT code_id, fragment_id, confidence, source, char_start, char_end, linked_at
		FROM code_fragment_links WHERE code_id = $1`

	rows, err := s.q.Query(ctx, query, codeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLinks(rows)
}

func scanLinks(rows pgx.Rows) ([]model.CodeFragmentLink, error) {
	var links []model.CodeFragmentLink
	for rows.Next() {
		var l model.CodeFragmentLink
		var source string
		if err := rows.Scan(&l.CodeID, &l.FragmentID, &l.Confidence, &source, &l.CharStart, &l.CharEnd, &l.LinkedAt); err != nil {
			return nil, err
		}
		l.Source = model.LinkSource(source)
		links = append(links, l)
	}
	return links, rows.Err()
}
