package domain

import (
	"time"

	"github.com/victornm/raindrop/internal/errors"
)

type ChallengeStatus string

const (
	ChallengePending    ChallengeStatus = "pending"
	ChallengeAccepted   ChallengeStatus = "accepted"
	ChallengeInProgress ChallengeStatus = "in-progress"
	ChallengeCompleted  ChallengeStatus = "completed"
	ChallengeDeclined   ChallengeStatus = "declined"
	ChallengeExpired    ChallengeStatus = "expired"
	ChallengeCancelled  ChallengeStatus = "cancelled"
)

// ActiveChallengeStatuses are the statuses that block a new challenge between the same pair.
var ActiveChallengeStatuses = []ChallengeStatus{ChallengePending, ChallengeAccepted, ChallengeInProgress}

var challengeTransitions = map[ChallengeStatus][]ChallengeStatus{
	ChallengePending:    {ChallengeAccepted, ChallengeDeclined, ChallengeExpired, ChallengeCancelled},
	ChallengeAccepted:   {ChallengeInProgress, ChallengeCompleted},
	ChallengeInProgress: {ChallengeCompleted},
}

func (s ChallengeStatus) Active() bool {
	return s == ChallengePending || s == ChallengeAccepted || s == ChallengeInProgress
}

func (s ChallengeStatus) CanTransitionTo(to ChallengeStatus) bool {
	for _, t := range challengeTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

type WinCondition string

const (
	WinByScore   WinCondition = "score"
	WinByTime    WinCondition = "time"
	WinTie       WinCondition = "tie"
	WinByForfeit WinCondition = "forfeit"
)

type ChallengeQuestion struct {
	QuestionID string `json:"question_id"`
	Order      int    `json:"order"`
}

// PartyResult is one side's final outcome, copied from the battle when it completes.
type PartyResult struct {
	Score     int      `json:"score"`
	Currency  int      `json:"currency_earned"`
	TimeSpent int      `json:"time_spent"`
	Answers   []Answer `json:"answers"`
}

// Challenge is a proposed or resolved 1v1 match.
type Challenge struct {
	ChallengeID    string              `json:"challenge_id"`
	ChallengerID   string              `json:"challenger_id"`
	ChallengedID   string              `json:"challenged_id"`
	Grade          string              `json:"grade"`
	Subject        string              `json:"subject"`
	Difficulty     Difficulty          `json:"difficulty"`
	Questions      []ChallengeQuestion `json:"questions"`
	WagerRaindrops int                 `json:"wager_raindrops"`
	Message        string              `json:"message,omitempty"`
	Status         ChallengeStatus     `json:"status"`
	BattleID       string              `json:"battle_id,omitempty"`

	ChallengerResult *PartyResult `json:"challenger_result,omitempty"`
	ChallengedResult *PartyResult `json:"challenged_result,omitempty"`
	WinnerID         string       `json:"winner_id,omitempty"`
	WinCondition     WinCondition `json:"win_condition,omitempty"`

	CreateTime   time.Time  `json:"create_time"`
	AcceptTime   *time.Time `json:"accept_time,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	CompleteTime *time.Time `json:"complete_time,omitempty"`
	ExpireTime   time.Time  `json:"expire_time"`
}

func (c *Challenge) Involves(studentID string) bool {
	return c.ChallengerID == studentID || c.ChallengedID == studentID
}

// Opponent returns the other party, or "" when studentID is not a party.
func (c *Challenge) Opponent(studentID string) string {
	switch studentID {
	case c.ChallengerID:
		return c.ChallengedID
	case c.ChallengedID:
		return c.ChallengerID
	}
	return ""
}

// IsExpired reports whether a pending challenge has outlived its expiry time.
func (c *Challenge) IsExpired(now time.Time) bool {
	return c.Status == ChallengePending && !now.Before(c.ExpireTime)
}

func (c *Challenge) transition(to ChallengeStatus) error {
	if c.Status.CanTransitionTo(to) {
		c.Status = to
		return nil
	}

	if c.Status != ChallengePending && (to == ChallengeAccepted || to == ChallengeDeclined || to == ChallengeCancelled || to == ChallengeExpired) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithKind(errors.KindNotPending),
			errors.WithMessagef("challenge %s is %s, not pending", c.ChallengeID, c.Status),
			errors.WithDetail("status", c.Status),
		)
	}

	return errors.New(errors.CodeFailedPrecondition,
		errors.WithKind(errors.KindInvalidStatus),
		errors.WithMessagef("challenge %s cannot move from %s to %s", c.ChallengeID, c.Status, to),
		errors.WithDetail("status", c.Status),
	)
}

func (c *Challenge) Accept(battleID string, now time.Time) error {
	if err := c.transition(ChallengeAccepted); err != nil {
		return err
	}
	c.BattleID = battleID
	c.AcceptTime = &now
	return nil
}

func (c *Challenge) Decline() error {
	return c.transition(ChallengeDeclined)
}

func (c *Challenge) Expire() error {
	return c.transition(ChallengeExpired)
}

// Cancel validates the cancellation; the record itself is deleted by the caller.
func (c *Challenge) Cancel() error {
	return c.transition(ChallengeCancelled)
}

func (c *Challenge) Start(now time.Time) error {
	if err := c.transition(ChallengeInProgress); err != nil {
		return err
	}
	c.StartTime = &now
	return nil
}

// Complete writes the battle outcome through to the challenge.
func (c *Challenge) Complete(b *Battle) error {
	if b.Results == nil {
		return errors.New(errors.CodeInternal, errors.WithMessagef("battle %s has no results", b.BattleID))
	}
	if err := c.transition(ChallengeCompleted); err != nil {
		return err
	}

	c.WinnerID = b.Results.WinnerID
	c.WinCondition = b.Results.WinCondition
	c.CompleteTime = b.CompleteTime
	if c.StartTime == nil {
		c.StartTime = b.StartTime
	}

	for _, p := range b.Participants {
		r := &PartyResult{
			Score:     p.Score.TotalScore,
			Currency:  p.Score.TotalCurrency,
			TimeSpent: p.Score.TotalTimeSpent,
			Answers:   b.AnswersOf(p.StudentID),
		}
		switch p.Role {
		case PartyChallenger:
			c.ChallengerResult = r
		case PartyChallenged:
			c.ChallengedResult = r
		}
	}

	return nil
}

func (c *Challenge) Clone() *Challenge {
	cp := *c
	cp.Questions = append([]ChallengeQuestion(nil), c.Questions...)
	cp.ChallengerResult = c.ChallengerResult.clone()
	cp.ChallengedResult = c.ChallengedResult.clone()
	cp.AcceptTime = cloneTime(c.AcceptTime)
	cp.StartTime = cloneTime(c.StartTime)
	cp.CompleteTime = cloneTime(c.CompleteTime)
	return &cp
}

func (r *PartyResult) clone() *PartyResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Answers = append([]Answer(nil), r.Answers...)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Standing is the input to winner determination.
type Standing struct {
	StudentID string
	Score     int
	TimeSpent int
}

// DecideWinner applies the shared policy: higher score wins, then lower total time, otherwise a tie.
func DecideWinner(a, b Standing) (string, WinCondition) {
	switch {
	case a.Score > b.Score:
		return a.StudentID, WinByScore
	case b.Score > a.Score:
		return b.StudentID, WinByScore
	case a.TimeSpent < b.TimeSpent:
		return a.StudentID, WinByTime
	case b.TimeSpent < a.TimeSpent:
		return b.StudentID, WinByTime
	default:
		return "", WinTie
	}
}
