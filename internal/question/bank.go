// Package question is a read-only accessor for the question bank.
package question

import (
	"context"
	"slices"
	"sort"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

type Filter struct {
	Grade        string
	Subject      string
	Difficulties []domain.Difficulty
}

type Bank interface {
	// ListIDs returns the ids of active questions matching f.
	ListIDs(ctx context.Context, f Filter) ([]string, error)
	// Get returns the questions in the order of ids. Unknown ids are a NotFound error.
	Get(ctx context.Context, ids ...string) ([]domain.Question, error)
}

// Static is a Bank over a fixed set of questions, all of them active.
type Static struct {
	questions map[string]domain.Question
}

func NewStatic(qs ...domain.Question) *Static {
	s := &Static{questions: make(map[string]domain.Question, len(qs))}
	for _, q := range qs {
		s.questions[q.QuestionID] = q
	}
	return s
}

func (s *Static) ListIDs(_ context.Context, f Filter) ([]string, error) {
	var ids []string
	for id, q := range s.questions {
		if q.Grade == f.Grade && q.Subject == f.Subject && slices.Contains(f.Difficulties, q.Difficulty) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Static) Get(_ context.Context, ids ...string) ([]domain.Question, error) {
	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := s.questions[id]
		if !ok {
			return nil, errors.NotFound("question not found: id=%s", id)
		}
		out = append(out, q)
	}
	return out, nil
}
