// Package notify pushes domain events to the students they concern over Redis pub/sub.
// Delivery is best effort; clients that miss a message catch up by polling.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/event"
)

const maxConcurrent = 100

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type Config struct {
	EventBus *event.Bus
	Redis    Redis
	Prefix   string
}

type Notifier struct {
	redis  Redis
	prefix string
}

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	ChallengeNotice struct {
		ChallengeID  string                 `json:"challenge_id"`
		ChallengerID string                 `json:"challenger_id"`
		ChallengedID string                 `json:"challenged_id"`
		Subject      string                 `json:"subject"`
		Difficulty   domain.Difficulty      `json:"difficulty"`
		Wager        int                    `json:"wager_raindrops"`
		Message      string                 `json:"message,omitempty"`
		Status       domain.ChallengeStatus `json:"status"`
		BattleID     string                 `json:"battle_id,omitempty"`
	}

	BattleNotice struct {
		BattleID             string                `json:"battle_id"`
		ChallengeID          string                `json:"challenge_id"`
		Status               domain.BattleStatus   `json:"status"`
		CurrentQuestionIndex int                   `json:"current_question_index"`
		Participants         []domain.Participant  `json:"participants"`
		Results              *domain.BattleResults `json:"results,omitempty"`
		StudentID            string                `json:"student_id,omitempty"`
	}
)

func New(c Config) *Notifier {
	n := &Notifier{
		redis:  c.Redis,
		prefix: c.Prefix,
	}

	eb := c.EventBus
	event.On(eb, domain.EventNameChallengeCreated, func(ctx context.Context, e domain.EventChallengeCreated) error {
		return n.challenge(ctx, e.Name(), e.Challenge, e.Challenge.ChallengedID)
	})
	event.On(eb, domain.EventNameChallengeAccepted, func(ctx context.Context, e domain.EventChallengeAccepted) error {
		return n.challenge(ctx, e.Name(), e.Challenge, e.Challenge.ChallengerID)
	})
	event.On(eb, domain.EventNameChallengeDeclined, func(ctx context.Context, e domain.EventChallengeDeclined) error {
		return n.challenge(ctx, e.Name(), e.Challenge, e.Challenge.ChallengerID)
	})
	event.On(eb, domain.EventNameChallengeCancelled, func(ctx context.Context, e domain.EventChallengeCancelled) error {
		return n.challenge(ctx, e.Name(), e.Challenge, e.Challenge.ChallengedID)
	})
	event.On(eb, domain.EventNameChallengeExpired, func(ctx context.Context, e domain.EventChallengeExpired) error {
		return n.challenge(ctx, e.Name(), e.Challenge, e.Challenge.ChallengerID, e.Challenge.ChallengedID)
	})

	event.On(eb, domain.EventNameBattleStarted, func(ctx context.Context, e domain.EventBattleStarted) error {
		return n.battle(ctx, e.Name(), e.Battle, "", participants(e.Battle)...)
	})
	event.On(eb, domain.EventNameAnswerSubmitted, func(ctx context.Context, e domain.EventAnswerSubmitted) error {
		return n.battle(ctx, e.Name(), e.Battle, e.Answer.StudentID, participants(e.Battle)...)
	})
	event.On(eb, domain.EventNameQuestionAdvanced, func(ctx context.Context, e domain.EventQuestionAdvanced) error {
		return n.battle(ctx, e.Name(), e.Battle, "", participants(e.Battle)...)
	})
	event.On(eb, domain.EventNameBattleCompleted, func(ctx context.Context, e domain.EventBattleCompleted) error {
		return n.battle(ctx, e.Name(), e.Battle, "", participants(e.Battle)...)
	})
	event.On(eb, domain.EventNameParticipantLeft, func(ctx context.Context, e domain.EventParticipantLeft) error {
		opp, ok := e.Battle.Opponent(e.StudentID)
		if !ok {
			return nil
		}
		return n.battle(ctx, e.Name(), e.Battle, e.StudentID, opp.StudentID)
	})

	event.On(eb, domain.EventNameLeaderboardUpdated, n.PublishLeaderboardUpdated)

	return n
}

// PublishLeaderboardUpdated sends the new ranking to everyone on it.
func (n *Notifier) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	users := make([]string, 0, len(e.Leaderboard.Entries))
	for _, entry := range e.Leaderboard.Entries {
		users = append(users, entry.StudentID)
	}
	return n.fanout(ctx, e.Name(), e.Leaderboard, users...)
}

func (n *Notifier) challenge(ctx context.Context, name string, c domain.Challenge, users ...string) error {
	return n.fanout(ctx, name, ChallengeNotice{
		ChallengeID:  c.ChallengeID,
		ChallengerID: c.ChallengerID,
		ChallengedID: c.ChallengedID,
		Subject:      c.Subject,
		Difficulty:   c.Difficulty,
		Wager:        c.WagerRaindrops,
		Message:      c.Message,
		Status:       c.Status,
		BattleID:     c.BattleID,
	}, users...)
}

func (n *Notifier) battle(ctx context.Context, name string, b domain.Battle, actor string, users ...string) error {
	return n.fanout(ctx, name, BattleNotice{
		BattleID:             b.BattleID,
		ChallengeID:          b.ChallengeID,
		Status:               b.Status,
		CurrentQuestionIndex: b.CurrentQuestionIndex,
		Participants:         b.Participants,
		Results:              b.Results,
		StudentID:            actor,
	}, users...)
}

func (n *Notifier) fanout(ctx context.Context, name string, data any, users ...string) error {
	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, user := range users {
		eg.Go(func() error {
			return n.publish(ctx, user, name, data)
		})
	}

	return eg.Wait()
}

func (n *Notifier) publish(ctx context.Context, user, event string, data any) error {
	b, err := json.Marshal(Notification{
		Event: event,
		Data:  data,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %v", event, err)
	}

	return n.redis.Publish(ctx, n.Channel(user), b).Err()
}

// Channel is the pub/sub channel a student's client subscribes to.
func (n *Notifier) Channel(user string) string {
	return fmt.Sprintf("%s:user:%s", n.prefix, user)
}

func participants(b domain.Battle) []string {
	out := make([]string, 0, len(b.Participants))
	for _, p := range b.Participants {
		out = append(out, p.StudentID)
	}
	return out
}
