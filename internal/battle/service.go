package battle

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
	"github.com/victornm/raindrop/internal/event"
	"github.com/victornm/raindrop/internal/question"
	"github.com/victornm/raindrop/internal/store"
)

type Config struct {
	EventBus  *event.Bus
	Store     store.Store
	Questions question.Bank

	// BonusRate is points per second left in the window. Defaults to 1 when
	// not set; a set zero turns the speed bonus off.
	BonusRate decimal.NullDecimal

	Now func() time.Time
}

type Service struct {
	eb        *event.Bus
	store     store.Store
	questions question.Bank
	bonusRate decimal.Decimal
	now       func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		eb:        c.EventBus,
		store:     c.Store,
		questions: c.Questions,
		bonusRate: decimal.NewFromInt(1),
		now:       c.Now,
	}

	if c.BonusRate.Valid {
		s.bonusRate = c.BonusRate.Decimal
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type Request struct {
	BattleID  string
	StudentID string
}

type QuestionView struct {
	Order         int               `json:"order"`
	QuestionID    string            `json:"question_id"`
	Text          string            `json:"text"`
	Difficulty    domain.Difficulty `json:"difficulty"`
	Options       []string          `json:"options"`
	CorrectAnswer string            `json:"correct_answer,omitempty"`
	Explanation   string            `json:"explanation,omitempty"`
}

type View struct {
	*domain.Battle
	QuestionDetails []QuestionView `json:"question_details"`
}

// Get returns the battle with its questions. Correct answers are only
// revealed once the battle has completed.
func (s *Service) Get(ctx context.Context, req Request) (*View, error) {
	b, err := s.participantBattle(ctx, req)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(b.Questions))
	for _, q := range b.Questions {
		ids = append(ids, q.QuestionID)
	}
	qs, err := s.questions.Get(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("battle: get questions: %w", err)
	}

	reveal := b.Status == domain.BattleCompleted
	views := make([]QuestionView, 0, len(qs))
	for i, q := range qs {
		v := QuestionView{
			Order:      b.Questions[i].Order,
			QuestionID: q.QuestionID,
			Text:       q.Text,
			Difficulty: q.Difficulty,
			Options:    make([]string, 0, len(q.Options)),
		}
		for _, o := range q.Options {
			v.Options = append(v.Options, o.Text)
		}
		if reveal {
			v.CorrectAnswer = q.CorrectAnswer
			v.Explanation = q.Explanation
		}
		views = append(views, v)
	}

	return &View{Battle: b.RedactFor(req.StudentID), QuestionDetails: views}, nil
}

type ReadyResponse struct {
	Battle  *domain.Battle
	Started bool
}

// MarkReady flags the caller ready. The second ready participant starts the
// battle and moves the challenge to in-progress.
func (s *Service) MarkReady(ctx context.Context, req Request) (*ReadyResponse, error) {
	now := s.now()

	var (
		b       *domain.Battle
		started bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = s.lock(ctx, tx, req.BattleID)
		if err != nil {
			return err
		}

		if started, err = b.MarkReady(req.StudentID, now); err != nil {
			return err
		}

		if started {
			c, err := s.lockChallenge(ctx, tx, b.ChallengeID)
			if err != nil {
				return err
			}
			if err := c.Start(now); err != nil {
				return err
			}
			if err := tx.UpdateChallenge(ctx, c); err != nil {
				return err
			}
		}

		return tx.UpdateBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if started {
		s.eb.Publish(ctx, domain.EventBattleStarted{Battle: *b.Clone()})
		slog.InfoContext(ctx, "battle: started", "battle_id", b.BattleID)
	}

	return &ReadyResponse{Battle: b, Started: started}, nil
}

type SubmitRequest struct {
	BattleID         string
	StudentID        string
	QuestionOrder    int
	SelectedOption   string
	TimeSpentSeconds int
}

type SubmitResponse struct {
	Correct     bool    `json:"correct"`
	Points      int     `json:"points"`
	Currency    int     `json:"currency"`
	TimeSpent   int     `json:"time_spent"`
	Explanation string  `json:"explanation,omitempty"`
	Completed   bool    `json:"completed"`
	Status      *Status `json:"status"`
}

// SubmitAnswer scores one answer and applies it atomically: ledger slot, live
// scores, cursor and, on the last slot, completion written through to the challenge.
func (s *Service) SubmitAnswer(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	b, err := s.battle(ctx, req.BattleID)
	if err != nil {
		return nil, err
	}
	if err := b.CheckSubmission(req.StudentID, req.QuestionOrder); err != nil {
		return nil, err
	}

	cq, _ := b.Question(req.QuestionOrder)
	qs, err := s.questions.Get(ctx, cq.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("battle: get question: %w", err)
	}
	q := qs[0]

	now := s.now()
	scored := Scorer{AllowedSeconds: b.Settings.AllowedSeconds, BonusRate: s.bonusRate}.
		Score(q, req.SelectedOption, req.TimeSpentSeconds)
	answer := domain.Answer{
		Order:          req.QuestionOrder,
		StudentID:      req.StudentID,
		SelectedOption: req.SelectedOption,
		Correct:        scored.Correct,
		TimeSpent:      scored.TimeSpent,
		Points:         scored.Points,
		Currency:       scored.Currency,
		SubmitTime:     now,
	}

	var (
		c         *domain.Challenge
		completed bool
		advanced  bool
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = s.lock(ctx, tx, req.BattleID)
		if err != nil {
			return err
		}

		cursor := b.CurrentQuestionIndex
		if completed, err = b.RecordAnswer(answer); err != nil {
			return err
		}
		advanced = b.CurrentQuestionIndex != cursor

		if completed {
			if c, err = s.complete(ctx, tx, b); err != nil {
				return err
			}
		}

		return tx.UpdateBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventAnswerSubmitted{Battle: *b.Clone(), Answer: answer})
	if advanced {
		s.eb.Publish(ctx, domain.EventQuestionAdvanced{Battle: *b.Clone(), Index: b.CurrentQuestionIndex})
	}
	if completed {
		s.eb.Publish(ctx, domain.EventBattleCompleted{Battle: *b.Clone(), Challenge: *c.Clone()})
		slog.InfoContext(ctx, "battle: completed",
			"battle_id", b.BattleID,
			"winner_id", b.Results.WinnerID,
			"win_condition", b.Results.WinCondition,
		)
	}

	return &SubmitResponse{
		Correct:     scored.Correct,
		Points:      scored.Points,
		Currency:    scored.Currency,
		TimeSpent:   scored.TimeSpent,
		Explanation: q.Explanation,
		Completed:   completed,
		Status:      statusOf(b),
	}, nil
}

type Status struct {
	BattleID             string                `json:"battle_id"`
	Status               domain.BattleStatus   `json:"status"`
	CurrentQuestionIndex int                   `json:"current_question_index"`
	QuestionCount        int                   `json:"question_count"`
	QuestionStartTime    *time.Time            `json:"question_start_time,omitempty"`
	Participants         []domain.Participant  `json:"participants"`
	Results              *domain.BattleResults `json:"results,omitempty"`
}

func statusOf(b *domain.Battle) *Status {
	return &Status{
		BattleID:             b.BattleID,
		Status:               b.Status,
		CurrentQuestionIndex: b.CurrentQuestionIndex,
		QuestionCount:        len(b.Questions),
		QuestionStartTime:    b.QuestionStartTime,
		Participants:         b.Participants,
		Results:              b.Results,
	}
}

// LiveStatus is the polling read. A poll also marks the caller connected.
func (s *Service) LiveStatus(ctx context.Context, req Request) (*Status, error) {
	b, err := s.participantBattle(ctx, req)
	if err != nil {
		return nil, err
	}
	if p, _ := b.Participant(req.StudentID); p.Connected || b.Status.Terminal() {
		return statusOf(b), nil
	}

	err = s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = s.lock(ctx, tx, req.BattleID)
		if err != nil {
			return err
		}
		joined, err := b.Connect(req.StudentID, s.now())
		if err != nil || !joined {
			return err
		}
		return tx.UpdateBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	return statusOf(b), nil
}

type ForfeitResponse struct {
	WinnerID string         `json:"winner_id"`
	Battle   *domain.Battle `json:"battle"`
}

// Forfeit ends the battle in favour of the opponent.
func (s *Service) Forfeit(ctx context.Context, req Request) (*ForfeitResponse, error) {
	now := s.now()

	var (
		b *domain.Battle
		c *domain.Challenge
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = s.lock(ctx, tx, req.BattleID)
		if err != nil {
			return err
		}

		if err := b.Forfeit(req.StudentID, now); err != nil {
			return err
		}

		if c, err = s.complete(ctx, tx, b); err != nil {
			return err
		}

		return tx.UpdateBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.eb.Publish(ctx, domain.EventBattleCompleted{Battle: *b.Clone(), Challenge: *c.Clone()})
	slog.InfoContext(ctx, "battle: forfeited",
		"battle_id", b.BattleID,
		"student_id", req.StudentID,
		"winner_id", b.Results.WinnerID,
	)

	return &ForfeitResponse{WinnerID: b.Results.WinnerID, Battle: b}, nil
}

// Leave clears the caller's connectivity flag. The battle state does not change.
func (s *Service) Leave(ctx context.Context, req Request) (*Status, error) {
	var (
		b    *domain.Battle
		left bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		b, err = s.lock(ctx, tx, req.BattleID)
		if err != nil {
			return err
		}

		p, ok := b.Participant(req.StudentID)
		if !ok {
			return b.Disconnect(req.StudentID, s.now())
		}
		if left = p.Connected; !left {
			return nil
		}

		if err := b.Disconnect(req.StudentID, s.now()); err != nil {
			return err
		}
		return tx.UpdateBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if left {
		s.eb.Publish(ctx, domain.EventParticipantLeft{Battle: *b.Clone(), StudentID: req.StudentID})
	}

	return statusOf(b), nil
}

// complete writes the battle outcome through to its challenge inside tx.
func (s *Service) complete(ctx context.Context, tx store.Tx, b *domain.Battle) (*domain.Challenge, error) {
	c, err := s.lockChallenge(ctx, tx, b.ChallengeID)
	if err != nil {
		return nil, err
	}
	if err := c.Complete(b); err != nil {
		return nil, err
	}
	if err := tx.UpdateChallenge(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) battle(ctx context.Context, id string) (*domain.Battle, error) {
	b, err := s.store.Battle(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("battle not found: id=%s", id)
	}
	return b, err
}

func (s *Service) participantBattle(ctx context.Context, req Request) (*domain.Battle, error) {
	b, err := s.battle(ctx, req.BattleID)
	if err != nil {
		return nil, err
	}
	if _, ok := b.Participant(req.StudentID); !ok {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithKind(errors.KindNotParticipant),
			errors.WithMessagef("student %s is not a participant of battle %s", req.StudentID, b.BattleID),
		)
	}
	return b, nil
}

func (s *Service) lock(ctx context.Context, tx store.Tx, id string) (*domain.Battle, error) {
	b, err := tx.Battle(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("battle not found: id=%s", id)
	}
	return b, err
}

func (s *Service) lockChallenge(ctx context.Context, tx store.Tx, id string) (*domain.Challenge, error) {
	c, err := tx.Challenge(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("battle: challenge %s is missing: %w", id, err)
	}
	return c, err
}
