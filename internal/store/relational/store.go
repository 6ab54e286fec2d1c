// Package relational is the Postgres-backed authoritative store. It holds
// Project/Interview/Fragment/Code/CodeFragmentLink/Category/Theory rows and
// is the single source of truth the graph and vector stores project from.
package relational

import (
	"errors"

	"groundedtheory.dev/core/core/db"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Stores provides access to all relational store implementations. It can be
// instantiated with either a connection pool or a transaction, so the same
// store code runs standalone or inside db.DB.WithTx.
type Stores struct {
	q db.Querier
}

// NewStores creates a new Stores instance backed by q, which may be a
// *pgxpool.Pool (non-transactional) or a pgx.Tx (transactional).
//
// Usage with pool:
//
//	stores := relational.NewStores(database.Pool())
//	project, err := stores.Projects().GetByID(ctx, id)
//
// Usage inside a transaction:
//
//	err := database.WithTx(ctx, func(tx pgx.Tx) error {
//	    stores := relational.NewStores(tx)
//	    if _, err := stores.Codes().GetOrCreate(ctx, projectID, label, definition, createdBy); err != nil {
//	        return err
//	    }
//	    _, err := stores.CodeFragmentLinks().CreateBatch(ctx, links)
//	    return err
//	})
func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Projects() ProjectStore                   { return newProjectStore(s.q) }
func (s *Stores) Interviews() InterviewStore               { return newInterviewStore(s.q) }
func (s *Stores) Fragments() FragmentStore                 { return newFragmentStore(s.q) }
func (s *Stores) Codes() CodeStore                         { return newCodeStore(s.q) }
func (s *Stores) CodeFragmentLinks() CodeFragmentLinkStore { return newCodeFragmentLinkStore(s.q) }
func (s *Stores) Categories() CategoryStore                { return newCategoryStore(s.q) }
func (s *Stores) Theories() TheoryStore                    { return newTheoryStore(s.q) }
