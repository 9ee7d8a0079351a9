package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

func TestDecideWinner(t *testing.T) {
	tests := map[string]struct {
		a, b       domain.Standing
		wantWinner string
		wantCond   domain.WinCondition
	}{
		"equal scores, faster player wins on time": {
			a:          domain.Standing{StudentID: "a", Score: 70, TimeSpent: 45},
			b:          domain.Standing{StudentID: "b", Score: 70, TimeSpent: 50},
			wantWinner: "a",
			wantCond:   domain.WinByTime,
		},
		"higher score wins regardless of time": {
			a:          domain.Standing{StudentID: "a", Score: 80, TimeSpent: 90},
			b:          domain.Standing{StudentID: "b", Score: 60, TimeSpent: 10},
			wantWinner: "a",
			wantCond:   domain.WinByScore,
		},
		"second player can win on score": {
			a:          domain.Standing{StudentID: "a", Score: 10},
			b:          domain.Standing{StudentID: "b", Score: 20},
			wantWinner: "b",
			wantCond:   domain.WinByScore,
		},
		"equal scores and times is a tie": {
			a:        domain.Standing{StudentID: "a", Score: 70, TimeSpent: 45},
			b:        domain.Standing{StudentID: "b", Score: 70, TimeSpent: 45},
			wantCond: domain.WinTie,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			winner, cond := domain.DecideWinner(tt.a, tt.b)
			assert.Equal(t, tt.wantWinner, winner)
			assert.Equal(t, tt.wantCond, cond)
		})
	}
}

func TestChallenge_Transitions(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		from    domain.ChallengeStatus
		act     func(c *domain.Challenge) error
		want    domain.ChallengeStatus
		wantErr errors.Kind
	}{
		"accept pending": {
			from: domain.ChallengePending,
			act:  func(c *domain.Challenge) error { return c.Accept("b1", now) },
			want: domain.ChallengeAccepted,
		},
		"accept declined": {
			from:    domain.ChallengeDeclined,
			act:     func(c *domain.Challenge) error { return c.Accept("b1", now) },
			wantErr: errors.KindNotPending,
		},
		"decline accepted": {
			from:    domain.ChallengeAccepted,
			act:     func(c *domain.Challenge) error { return c.Decline() },
			wantErr: errors.KindNotPending,
		},
		"cancel pending": {
			from: domain.ChallengePending,
			act:  func(c *domain.Challenge) error { return c.Cancel() },
			want: domain.ChallengeCancelled,
		},
		"start accepted": {
			from: domain.ChallengeAccepted,
			act:  func(c *domain.Challenge) error { return c.Start(now) },
			want: domain.ChallengeInProgress,
		},
		"start pending": {
			from:    domain.ChallengePending,
			act:     func(c *domain.Challenge) error { return c.Start(now) },
			wantErr: errors.KindInvalidStatus,
		},
		"expire in progress": {
			from:    domain.ChallengeInProgress,
			act:     func(c *domain.Challenge) error { return c.Expire() },
			wantErr: errors.KindNotPending,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := &domain.Challenge{ChallengeID: "c1", Status: tt.from}
			err := tt.act(c)
			if tt.wantErr != errors.KindUnknown {
				assert.Equal(t, tt.wantErr, errors.KindOf(err))
				assert.Equal(t, tt.from, c.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Status)
		})
	}
}

func TestChallenge_IsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := &domain.Challenge{Status: domain.ChallengePending, ExpireTime: now.Add(24 * time.Hour)}

	assert.False(t, c.IsExpired(now))
	assert.True(t, c.IsExpired(now.Add(24*time.Hour)))

	c.Status = domain.ChallengeAccepted
	assert.False(t, c.IsExpired(now.Add(48*time.Hour)))
}

func TestChallenge_CompleteCopiesBattleOutcome(t *testing.T) {
	b := newBattle(t, 1)
	startBattle(t, b)
	_, err := b.RecordAnswer(answer("alice", 1, 100, 4, 5, true))
	require.NoError(t, err)
	_, err = b.RecordAnswer(answer("bob", 1, 60, 1, 25, true))
	require.NoError(t, err)

	c := &domain.Challenge{ChallengeID: "c1", ChallengerID: "alice", ChallengedID: "bob", Status: domain.ChallengeInProgress}
	require.NoError(t, c.Complete(b))

	assert.Equal(t, domain.ChallengeCompleted, c.Status)
	assert.Equal(t, b.Results.WinnerID, c.WinnerID)
	assert.Equal(t, b.Results.WinCondition, c.WinCondition)
	require.NotNil(t, c.ChallengerResult)
	assert.Equal(t, 100, c.ChallengerResult.Score)
	assert.Equal(t, 4, c.ChallengerResult.Currency)
	require.NotNil(t, c.ChallengedResult)
	assert.Equal(t, 25, c.ChallengedResult.TimeSpent)
	assert.Len(t, c.ChallengedResult.Answers, 1)
}

func TestDifficulty_AndHarder(t *testing.T) {
	assert.Equal(t, []domain.Difficulty{domain.DifficultyAdvanced, domain.DifficultyExpert}, domain.DifficultyAdvanced.AndHarder())
	assert.Equal(t, []domain.Difficulty{domain.DifficultyExpert}, domain.DifficultyExpert.AndHarder())
	assert.Nil(t, domain.Difficulty("legendary").AndHarder())
}
