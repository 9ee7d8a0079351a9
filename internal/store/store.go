// Package store persists challenges and battles.
//
// Every mutation runs inside InTx. Records read through a Tx are locked until
// the transaction ends, so two requests racing on the same challenge or battle
// are serialized and the second one observes the first one's writes.
package store

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/victornm/raindrop/internal/domain"
)

var (
	ErrNotFound = stderrors.New("store: not found")
	// ErrConflict reports that another active challenge already exists for the same pair.
	ErrConflict = stderrors.New("store: conflict")
)

type ChallengeFilter struct {
	StudentID string
	Statuses  []domain.ChallengeStatus
	Limit     int
	Offset    int
}

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error

	Challenge(ctx context.Context, id string) (*domain.Challenge, error)
	Battle(ctx context.Context, id string) (*domain.Battle, error)

	// ListChallenges returns the page of challenges involving f.StudentID,
	// newest first, and the total number of matches.
	ListChallenges(ctx context.Context, f ChallengeFilter) ([]domain.Challenge, int, error)
	// ActiveOpponents returns everyone currently in a non-terminal challenge with studentID.
	// Pending challenges past their expiry at now do not count.
	ActiveOpponents(ctx context.Context, studentID string, now time.Time) ([]string, error)
	ChallengeStats(ctx context.Context, studentID string) (domain.BattleStats, error)
	// BattleCurrency sums the final currency of studentID over completed battles.
	BattleCurrency(ctx context.Context, studentID string) (int64, error)
}

type Tx interface {
	Challenge(ctx context.Context, id string) (*domain.Challenge, error)
	// ActiveChallengeBetween returns the non-terminal challenge of the unordered pair, or ErrNotFound.
	ActiveChallengeBetween(ctx context.Context, a, b string) (*domain.Challenge, error)
	InsertChallenge(ctx context.Context, c *domain.Challenge) error
	UpdateChallenge(ctx context.Context, c *domain.Challenge) error
	DeleteChallenge(ctx context.Context, id string) error

	Battle(ctx context.Context, id string) (*domain.Battle, error)
	InsertBattle(ctx context.Context, b *domain.Battle) error
	UpdateBattle(ctx context.Context, b *domain.Battle) error
}

// StatsOf folds a student's challenges into battle stats.
func StatsOf(studentID string, cs []domain.Challenge) domain.BattleStats {
	var s domain.BattleStats
	for _, c := range cs {
		if !c.Involves(studentID) {
			continue
		}
		switch c.Status {
		case domain.ChallengeCompleted:
			switch c.WinnerID {
			case "":
				s.Ties++
			case studentID:
				s.Wins++
			default:
				s.Losses++
			}
		case domain.ChallengeDeclined:
			s.Declined++
		}
	}
	return s
}
