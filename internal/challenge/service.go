package challenge

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
	"github.com/victornm/raindrop/internal/event"
	"github.com/victornm/raindrop/internal/question"
	"github.com/victornm/raindrop/internal/store"
	"github.com/victornm/raindrop/internal/student"
	"github.com/victornm/raindrop/internal/unlock"
)

const (
	defaultQuestionCount  = 5
	defaultTTL            = 24 * time.Hour
	defaultAllowedSeconds = 30

	MinWager = 1
	MaxWager = 50
)

// Balance returns a student's current currency total.
type Balance interface {
	Total(ctx context.Context, studentID string) (int64, error)
}

type Config struct {
	EventBus  *event.Bus
	Store     store.Store
	Students  student.Directory
	Questions question.Bank
	Currency  Balance

	QuestionCount  int
	TTL            time.Duration
	AllowedSeconds int

	Now   func() time.Time
	NewID func() (string, error)
}

type Service struct {
	eb        *event.Bus
	store     store.Store
	students  student.Directory
	questions question.Bank
	currency  Balance

	questionCount  int
	ttl            time.Duration
	allowedSeconds int

	now   func() time.Time
	newID func() (string, error)
}

func NewService(c Config) *Service {
	s := &Service{
		eb:             c.EventBus,
		store:          c.Store,
		students:       c.Students,
		questions:      c.Questions,
		currency:       c.Currency,
		questionCount:  c.QuestionCount,
		ttl:            c.TTL,
		allowedSeconds: c.AllowedSeconds,
		now:            c.Now,
		newID:          c.NewID,
	}

	if s.questionCount <= 0 {
		s.questionCount = defaultQuestionCount
	}
	if s.ttl <= 0 {
		s.ttl = defaultTTL
	}
	if s.allowedSeconds <= 0 {
		s.allowedSeconds = defaultAllowedSeconds
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() (string, error) {
			id, err := uuid.NewV7()
			return id.String(), err
		}
	}

	return s
}

type CreateRequest struct {
	ChallengerID string
	ChallengedID string
	Subject      string
	Difficulty   domain.Difficulty
	Wager        int
	Message      string
}

func (r CreateRequest) validate() error {
	switch {
	case strings.TrimSpace(r.ChallengedID) == "":
		return errors.Invalid("challenged_id", "challenged student is required")
	case strings.TrimSpace(r.Subject) == "":
		return errors.Invalid("subject", "subject is required")
	case !r.Difficulty.IsTier():
		return errors.Invalid("difficulty", "difficulty must be one of advanced, expert: got %q", r.Difficulty)
	case r.Wager < MinWager || r.Wager > MaxWager:
		return errors.Invalid("wager_raindrops", "wager must be between %d and %d: got %d", MinWager, MaxWager, r.Wager)
	}
	return nil
}

// Create validates the pair and the challenger's standing, draws the question
// set and persists a pending challenge.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Challenge, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	if req.ChallengerID == req.ChallengedID {
		return nil, errors.New(errors.CodeInvalidArgument,
			errors.WithKind(errors.KindInvalidParty),
			errors.WithMessagef("cannot challenge yourself"),
		)
	}

	challenger, challenged, err := s.parties(ctx, req.ChallengerID, req.ChallengedID)
	if err != nil {
		return nil, err
	}

	if challenger.Grade != challenged.Grade {
		return nil, errors.New(errors.CodeFailedPrecondition,
			errors.WithKind(errors.KindGradeMismatch),
			errors.WithMessagef("students must be in the same grade: %s vs %s", challenger.Grade, challenged.Grade),
		)
	}

	balance, err := s.currency.Total(ctx, req.ChallengerID)
	if err != nil {
		return nil, fmt.Errorf("challenge: currency: %w", err)
	}

	if !unlock.CanAccessDifficulty(balance, req.Difficulty) {
		required, _ := unlock.Required(req.Difficulty)
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithKind(errors.KindDifficultyLocked),
			errors.WithMessagef("%s challenges unlock at %d raindrops. You have %d", req.Difficulty, required, balance),
			errors.WithDetail("difficulty", req.Difficulty),
			errors.WithDetail("required", required),
			errors.WithDetail("have", balance),
			errors.WithDetail("missing", required-balance),
		)
	}

	if err := affordable(balance, req.Wager); err != nil {
		return nil, err
	}

	qs, err := s.drawQuestions(ctx, challenger.Grade, req.Subject, req.Difficulty)
	if err != nil {
		return nil, err
	}

	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("challenge: generate id: %w", err)
	}

	now := s.now()
	c := &domain.Challenge{
		ChallengeID:    id,
		ChallengerID:   req.ChallengerID,
		ChallengedID:   req.ChallengedID,
		Grade:          challenger.Grade,
		Subject:        req.Subject,
		Difficulty:     req.Difficulty,
		Questions:      qs,
		WagerRaindrops: req.Wager,
		Message:        strings.TrimSpace(req.Message),
		Status:         domain.ChallengePending,
		CreateTime:     now,
		ExpireTime:     now.Add(s.ttl),
	}

	var expired *domain.Challenge
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		active, err := tx.ActiveChallengeBetween(ctx, c.ChallengerID, c.ChallengedID)
		switch {
		case stderrors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case active.IsExpired(now):
			if err := active.Expire(); err != nil {
				return err
			}
			if err := tx.UpdateChallenge(ctx, active); err != nil {
				return err
			}
			expired = active
		default:
			return duplicate(active)
		}

		if err := tx.InsertChallenge(ctx, c); err != nil {
			if stderrors.Is(err, store.ErrConflict) {
				return duplicate(nil)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired != nil {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: *expired})
	}
	s.eb.Publish(ctx, domain.EventChallengeCreated{Challenge: *c})

	slog.InfoContext(ctx, "challenge: created",
		"challenge_id", c.ChallengeID,
		"challenger_id", c.ChallengerID,
		"challenged_id", c.ChallengedID,
		"difficulty", c.Difficulty,
	)

	return c, nil
}

func (s *Service) parties(ctx context.Context, challengerID, challengedID string) (*domain.Student, *domain.Student, error) {
	challenger, err := s.students.Student(ctx, challengerID)
	if err != nil {
		return nil, nil, err
	}
	challenged, err := s.students.Student(ctx, challengedID)
	if err != nil {
		return nil, nil, err
	}

	for _, st := range []*domain.Student{challenger, challenged} {
		if st.Role != domain.RoleStudent {
			return nil, nil, errors.New(errors.CodeInvalidArgument,
				errors.WithKind(errors.KindInvalidParty),
				errors.WithMessagef("%s is not a student", st.StudentID),
			)
		}
	}

	return challenger, challenged, nil
}

func (s *Service) drawQuestions(ctx context.Context, grade, subject string, d domain.Difficulty) ([]domain.ChallengeQuestion, error) {
	ids, err := s.questions.ListIDs(ctx, question.Filter{
		Grade:        grade,
		Subject:      subject,
		Difficulties: d.AndHarder(),
	})
	if err != nil {
		return nil, fmt.Errorf("challenge: list questions: %w", err)
	}

	if len(ids) < s.questionCount {
		return nil, errors.New(errors.CodeResourceExhausted,
			errors.WithKind(errors.KindInsufficientQuestionPool),
			errors.WithMessagef("not enough %s questions for grade %s at %s or harder: have %d, need %d", subject, grade, d, len(ids), s.questionCount),
			errors.WithDetail("available", len(ids)),
			errors.WithDetail("required", s.questionCount),
		)
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	qs := make([]domain.ChallengeQuestion, 0, s.questionCount)
	for i, id := range ids[:s.questionCount] {
		qs = append(qs, domain.ChallengeQuestion{QuestionID: id, Order: i + 1})
	}
	return qs, nil
}

type ActionRequest struct {
	ChallengeID string
	ActorID     string
}

type AcceptResponse struct {
	Challenge *domain.Challenge
	BattleID  string
}

// Accept moves a pending challenge to accepted and creates its battle in the same transaction.
func (s *Service) Accept(ctx context.Context, req ActionRequest) (*AcceptResponse, error) {
	c, err := s.get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if c.ChallengedID != req.ActorID {
		return nil, notChallengedParty(c)
	}

	now := s.now()
	if c.Status == domain.ChallengePending && !c.IsExpired(now) {
		balance, err := s.currency.Total(ctx, req.ActorID)
		if err != nil {
			return nil, fmt.Errorf("challenge: currency: %w", err)
		}
		if err := affordable(balance, c.WagerRaindrops); err != nil {
			return nil, err
		}
	}

	battleID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("challenge: generate battle id: %w", err)
	}

	var (
		expired bool
		b       *domain.Battle
	)
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		c, err = s.lock(ctx, tx, req.ChallengeID)
		if err != nil {
			return err
		}
		if c.ChallengedID != req.ActorID {
			return notChallengedParty(c)
		}

		if expired, err = s.expireIfDue(ctx, tx, c, now); err != nil || expired {
			return err
		}

		if err := c.Accept(battleID, now); err != nil {
			return err
		}
		b = domain.NewBattle(battleID, c, s.allowedSeconds, now)

		if err := tx.UpdateChallenge(ctx, c); err != nil {
			return err
		}
		return tx.InsertBattle(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: *c})
		return nil, challengeExpired(c)
	}

	s.eb.Publish(ctx, domain.EventChallengeAccepted{Challenge: *c, Battle: *b})

	slog.InfoContext(ctx, "challenge: accepted",
		"challenge_id", c.ChallengeID,
		"battle_id", b.BattleID,
	)

	return &AcceptResponse{Challenge: c, BattleID: b.BattleID}, nil
}

// Decline is only open to the challenged party while the challenge is pending.
func (s *Service) Decline(ctx context.Context, req ActionRequest) (*domain.Challenge, error) {
	now := s.now()

	var (
		c       *domain.Challenge
		expired bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = s.lock(ctx, tx, req.ChallengeID)
		if err != nil {
			return err
		}
		if c.ChallengedID != req.ActorID {
			return notChallengedParty(c)
		}

		if expired, err = s.expireIfDue(ctx, tx, c, now); err != nil || expired {
			return err
		}

		if err := c.Decline(); err != nil {
			return err
		}
		return tx.UpdateChallenge(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: *c})
		return nil, challengeExpired(c)
	}

	s.eb.Publish(ctx, domain.EventChallengeDeclined{Challenge: *c})
	return c, nil
}

// Cancel deletes a pending challenge. Only the challenger may cancel.
func (s *Service) Cancel(ctx context.Context, req ActionRequest) (*domain.Challenge, error) {
	now := s.now()

	var (
		c       *domain.Challenge
		expired bool
	)
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		c, err = s.lock(ctx, tx, req.ChallengeID)
		if err != nil {
			return err
		}
		if c.ChallengerID != req.ActorID {
			return errors.New(errors.CodePermissionDenied,
				errors.WithKind(errors.KindNotChallenger),
				errors.WithMessagef("only the challenger can cancel challenge %s", c.ChallengeID),
			)
		}

		if expired, err = s.expireIfDue(ctx, tx, c, now); err != nil || expired {
			return err
		}

		if err := c.Cancel(); err != nil {
			return err
		}
		return tx.DeleteChallenge(ctx, c.ChallengeID)
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: *c})
		return nil, challengeExpired(c)
	}

	s.eb.Publish(ctx, domain.EventChallengeCancelled{Challenge: *c})
	return c, nil
}

// Get returns a challenge the caller is a party to, expiring it first when its deadline has passed.
func (s *Service) Get(ctx context.Context, req ActionRequest) (*domain.Challenge, error) {
	c, err := s.get(ctx, req.ChallengeID)
	if err != nil {
		return nil, err
	}
	if !c.Involves(req.ActorID) {
		return nil, errors.New(errors.CodePermissionDenied,
			errors.WithKind(errors.KindForbidden),
			errors.WithMessagef("challenge %s does not involve %s", c.ChallengeID, req.ActorID),
		)
	}

	now := s.now()
	if !c.IsExpired(now) {
		return c, nil
	}

	var expired bool
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		c, err = s.lock(ctx, tx, req.ChallengeID)
		if err != nil {
			return err
		}
		expired, err = s.expireIfDue(ctx, tx, c, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	if expired {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: *c})
	}
	return c, nil
}

type Pending struct {
	Sent     []domain.Challenge `json:"sent"`
	Received []domain.Challenge `json:"received"`
}

// ListPending returns the caller's pending challenges split by direction.
// Challenges found past their expiry are expired on the way.
func (s *Service) ListPending(ctx context.Context, studentID string) (*Pending, error) {
	cs, err := s.sweep(ctx, studentID, s.now())
	if err != nil {
		return nil, err
	}

	out := &Pending{Sent: []domain.Challenge{}, Received: []domain.Challenge{}}
	for _, c := range cs {
		if c.ChallengerID == studentID {
			out.Sent = append(out.Sent, c)
		} else {
			out.Received = append(out.Received, c)
		}
	}

	return out, nil
}

// sweep expires the student's pending challenges that are past their deadline
// and returns the ones still pending.
func (s *Service) sweep(ctx context.Context, studentID string, now time.Time) ([]domain.Challenge, error) {
	cs, _, err := s.store.ListChallenges(ctx, store.ChallengeFilter{
		StudentID: studentID,
		Statuses:  []domain.ChallengeStatus{domain.ChallengePending},
	})
	if err != nil {
		return nil, fmt.Errorf("challenge: list pending: %w", err)
	}

	var (
		live []domain.Challenge
		due  []string
	)
	for _, c := range cs {
		if c.IsExpired(now) {
			due = append(due, c.ChallengeID)
			continue
		}
		live = append(live, c)
	}

	if len(due) > 0 {
		s.expireAll(ctx, due, now)
	}

	return live, nil
}

func (s *Service) expireAll(ctx context.Context, ids []string, now time.Time) {
	var expired []domain.Challenge
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		for _, id := range ids {
			c, err := tx.Challenge(ctx, id)
			if stderrors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			ok, err := s.expireIfDue(ctx, tx, c, now)
			if err != nil {
				return err
			}
			if ok {
				expired = append(expired, *c)
			}
		}
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "challenge: expire pending failed", "error", err)
		return
	}

	for _, c := range expired {
		s.eb.Publish(ctx, domain.EventChallengeExpired{Challenge: c})
	}
}

type HistoryRequest struct {
	StudentID string
	Page      int
	PageSize  int
}

type History struct {
	Challenges []domain.Challenge `json:"challenges"`
	Total      int                `json:"total"`
	Page       int                `json:"page"`
	PageSize   int                `json:"page_size"`
	Stats      domain.BattleStats `json:"stats"`
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// History pages through the caller's finished challenges, newest first.
func (s *Service) History(ctx context.Context, req HistoryRequest) (*History, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize < 1 {
		req.PageSize = defaultPageSize
	}
	req.PageSize = min(req.PageSize, maxPageSize)

	if _, err := s.sweep(ctx, req.StudentID, s.now()); err != nil {
		return nil, err
	}

	cs, total, err := s.store.ListChallenges(ctx, store.ChallengeFilter{
		StudentID: req.StudentID,
		Statuses:  []domain.ChallengeStatus{domain.ChallengeCompleted, domain.ChallengeDeclined, domain.ChallengeExpired},
		Limit:     req.PageSize,
		Offset:    (req.Page - 1) * req.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("challenge: history: %w", err)
	}

	stats, err := s.store.ChallengeStats(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("challenge: stats: %w", err)
	}

	if cs == nil {
		cs = []domain.Challenge{}
	}

	return &History{
		Challenges: cs,
		Total:      total,
		Page:       req.Page,
		PageSize:   req.PageSize,
		Stats:      stats,
	}, nil
}

func (s *Service) get(ctx context.Context, id string) (*domain.Challenge, error) {
	c, err := s.store.Challenge(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("challenge not found: id=%s", id)
	}
	return c, err
}

func (s *Service) lock(ctx context.Context, tx store.Tx, id string) (*domain.Challenge, error) {
	c, err := tx.Challenge(ctx, id)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.NotFound("challenge not found: id=%s", id)
	}
	return c, err
}

// expireIfDue persists the expiry of a pending challenge past its deadline and reports whether it did.
func (s *Service) expireIfDue(ctx context.Context, tx store.Tx, c *domain.Challenge, now time.Time) (bool, error) {
	if !c.IsExpired(now) {
		return false, nil
	}
	if err := c.Expire(); err != nil {
		return false, err
	}
	if err := tx.UpdateChallenge(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

func affordable(balance int64, wager int) error {
	if balance >= int64(wager) {
		return nil
	}
	return errors.New(errors.CodeResourceExhausted,
		errors.WithKind(errors.KindInsufficientCurrency),
		errors.WithMessagef("Insufficient raindrops. You have %d, need %d", balance, wager),
		errors.WithDetail("have", balance),
		errors.WithDetail("need", wager),
		errors.WithDetail("missing", int64(wager)-balance),
	)
}

func duplicate(active *domain.Challenge) error {
	opts := []errors.Option{
		errors.WithKind(errors.KindDuplicateChallenge),
		errors.WithMessagef("an active challenge already exists between these students"),
	}
	if active != nil {
		opts = append(opts,
			errors.WithDetail("challenge_id", active.ChallengeID),
			errors.WithDetail("status", active.Status),
		)
	}
	return errors.New(errors.CodeAlreadyExists, opts...)
}

func notChallengedParty(c *domain.Challenge) error {
	return errors.New(errors.CodePermissionDenied,
		errors.WithKind(errors.KindNotChallengedParty),
		errors.WithMessagef("only the challenged student can respond to challenge %s", c.ChallengeID),
	)
}

func challengeExpired(c *domain.Challenge) error {
	return errors.New(errors.CodeFailedPrecondition,
		errors.WithKind(errors.KindChallengeExpired),
		errors.WithMessagef("challenge %s expired at %s", c.ChallengeID, c.ExpireTime.Format(time.RFC3339)),
		errors.WithDetail("expire_time", c.ExpireTime),
	)
}
