// Package currency derives a student's raindrop balance from their history.
// Nothing here stores a balance; every read is recomputed.
package currency

import (
	"context"
	"fmt"
)

// AttemptHistory sums currency over a student's completed test attempts.
type AttemptHistory interface {
	AttemptCurrency(ctx context.Context, studentID string) (int64, error)
}

// BattleHistory sums final currency over a student's completed battles.
type BattleHistory interface {
	BattleCurrency(ctx context.Context, studentID string) (int64, error)
}

type Config struct {
	Attempts AttemptHistory
	Battles  BattleHistory
}

type Ledger struct {
	attempts AttemptHistory
	battles  BattleHistory
}

func NewLedger(c Config) *Ledger {
	return &Ledger{
		attempts: c.Attempts,
		battles:  c.Battles,
	}
}

// Total returns the student's current balance. It is never negative.
func (l *Ledger) Total(ctx context.Context, studentID string) (int64, error) {
	attempts, err := l.attempts.AttemptCurrency(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("attempt currency: student=%s: %w", studentID, err)
	}

	battles, err := l.battles.BattleCurrency(ctx, studentID)
	if err != nil {
		return 0, fmt.Errorf("battle currency: student=%s: %w", studentID, err)
	}

	return max(attempts, 0) + max(battles, 0), nil
}

// StaticAttempts is an AttemptHistory backed by a fixed map.
type StaticAttempts map[string]int64

func (s StaticAttempts) AttemptCurrency(_ context.Context, studentID string) (int64, error) {
	return s[studentID], nil
}
