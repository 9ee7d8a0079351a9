package challenge

import (
	"context"
	"fmt"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/question"
	"github.com/victornm/raindrop/internal/unlock"
)

type OpponentsRequest struct {
	StudentID string
	// Subject is optional. When set, the response reports the question pool per tier.
	Subject string
}

type Opponent struct {
	Student  domain.Student     `json:"student"`
	Stats    domain.BattleStats `json:"battle_stats"`
	Currency int64              `json:"current_currency"`
}

type Opponents struct {
	Opponents []Opponent                            `json:"opponents"`
	Currency  int64                                 `json:"currency"`
	Tiers     map[domain.Difficulty]unlock.TierInfo `json:"tiers"`
	Pools     map[domain.Difficulty]int             `json:"question_pools,omitempty"`
}

// Opponents lists classmates the caller may challenge right now.
func (s *Service) Opponents(ctx context.Context, req OpponentsRequest) (*Opponents, error) {
	me, err := s.students.Student(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	classmates, err := s.students.StudentsInGrade(ctx, me.Grade)
	if err != nil {
		return nil, fmt.Errorf("challenge: students in grade: %w", err)
	}

	now := s.now()
	if _, err := s.sweep(ctx, req.StudentID, now); err != nil {
		return nil, err
	}

	busy, err := s.store.ActiveOpponents(ctx, req.StudentID, now)
	if err != nil {
		return nil, fmt.Errorf("challenge: active opponents: %w", err)
	}
	excluded := make(map[string]bool, len(busy)+1)
	excluded[req.StudentID] = true
	for _, id := range busy {
		excluded[id] = true
	}

	out := &Opponents{Opponents: []Opponent{}}
	for _, st := range classmates {
		if excluded[st.StudentID] {
			continue
		}

		stats, err := s.store.ChallengeStats(ctx, st.StudentID)
		if err != nil {
			return nil, fmt.Errorf("challenge: stats: student=%s: %w", st.StudentID, err)
		}
		balance, err := s.currency.Total(ctx, st.StudentID)
		if err != nil {
			return nil, fmt.Errorf("challenge: currency: student=%s: %w", st.StudentID, err)
		}

		out.Opponents = append(out.Opponents, Opponent{Student: st, Stats: stats, Currency: balance})
	}

	out.Currency, err = s.currency.Total(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("challenge: currency: %w", err)
	}
	out.Tiers = unlock.AvailableTiers(out.Currency)

	if req.Subject != "" {
		out.Pools = make(map[domain.Difficulty]int, len(domain.Tiers))
		for _, t := range domain.Tiers {
			ids, err := s.questions.ListIDs(ctx, question.Filter{Grade: me.Grade, Subject: req.Subject, Difficulties: t.AndHarder()})
			if err != nil {
				return nil, fmt.Errorf("challenge: list questions: %w", err)
			}
			out.Pools[t] = len(ids)
		}
	}

	return out, nil
}
