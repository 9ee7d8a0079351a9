package challenge_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/raindrop/internal/challenge"
	"github.com/victornm/raindrop/internal/currency"
	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
	"github.com/victornm/raindrop/internal/event"
	"github.com/victornm/raindrop/internal/question"
	"github.com/victornm/raindrop/internal/store"
	"github.com/victornm/raindrop/internal/store/memory"
	"github.com/victornm/raindrop/internal/student"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc    *challenge.Service
	store  *memory.Store
	bus    *event.Bus
	clock  *clock
	events *recorder
}

type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) record(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, e.Name())
	return nil
}

func (r *recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.names...)
}

func questions(grade, subject string, d domain.Difficulty, n int) []domain.Question {
	qs := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, domain.Question{
			QuestionID:    fmt.Sprintf("%s-%s-%s-%d", grade, subject, d, i),
			Grade:         grade,
			Subject:       subject,
			Difficulty:    d,
			Text:          fmt.Sprintf("question %d", i),
			CorrectAnswer: "right",
		})
	}
	return qs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := memory.New()
	bus := event.NewBus()
	clk := &clock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	rec := &recorder{}
	for _, name := range []string{
		domain.EventNameChallengeCreated,
		domain.EventNameChallengeAccepted,
		domain.EventNameChallengeDeclined,
		domain.EventNameChallengeCancelled,
		domain.EventNameChallengeExpired,
	} {
		bus.Subscribe(name, rec.record)
	}

	var qs []domain.Question
	qs = append(qs, questions("5", "math", domain.DifficultyAdvanced, 4)...)
	qs = append(qs, questions("5", "math", domain.DifficultyExpert, 3)...)
	qs = append(qs, questions("5", "math", domain.DifficultyBeginner, 10)...)
	qs = append(qs, questions("5", "science", domain.DifficultyAdvanced, 3)...)

	ledger := currency.NewLedger(currency.Config{
		Attempts: currency.StaticAttempts{
			"alice": 30,
			"bob":   40,
			"carol": 10,
			"dave":  100,
			"erin":  3,
		},
		Battles: st,
	})

	svc := challenge.NewService(challenge.Config{
		EventBus: bus,
		Store:    st,
		Students: student.NewStatic(
			domain.Student{StudentID: "alice", Name: "Alice", Grade: "5", Role: domain.RoleStudent},
			domain.Student{StudentID: "bob", Name: "Bob", Grade: "5", Role: domain.RoleStudent},
			domain.Student{StudentID: "carol", Name: "Carol", Grade: "5", Role: domain.RoleStudent},
			domain.Student{StudentID: "dave", Name: "Dave", Grade: "5", Role: domain.RoleStudent},
			domain.Student{StudentID: "erin", Name: "Erin", Grade: "5", Role: domain.RoleStudent},
			domain.Student{StudentID: "frank", Name: "Frank", Grade: "6", Role: domain.RoleStudent},
			domain.Student{StudentID: "tina", Name: "Tina", Grade: "5", Role: domain.RoleTeacher},
		),
		Questions: question.NewStatic(qs...),
		Currency:  ledger,
		Now:       clk.Now,
	})

	return &fixture{svc: svc, store: st, bus: bus, clock: clk, events: rec}
}

func (f *fixture) create(t *testing.T, from, to string) *domain.Challenge {
	t.Helper()
	c, err := f.svc.Create(context.Background(), challenge.CreateRequest{
		ChallengerID: from,
		ChallengedID: to,
		Subject:      "math",
		Difficulty:   domain.DifficultyAdvanced,
		Wager:        5,
	})
	require.NoError(t, err)
	return c
}

func TestService_Create(t *testing.T) {
	valid := challenge.CreateRequest{
		ChallengerID: "alice",
		ChallengedID: "bob",
		Subject:      "math",
		Difficulty:   domain.DifficultyAdvanced,
		Wager:        5,
		Message:      "  bring it  ",
	}

	tests := map[string]struct {
		arrange     func(t *testing.T, f *fixture, req *challenge.CreateRequest)
		wantKind    errors.Kind
		wantDetails map[string]any
	}{
		"success": {},
		"missing challenged student": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengedID = "" },
			wantKind: errors.KindValidation,
		},
		"wager above the cap": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.Wager = 51 },
			wantKind: errors.KindValidation,
		},
		"non-tier difficulty": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.Difficulty = domain.DifficultyBeginner },
			wantKind: errors.KindValidation,
		},
		"self challenge": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengedID = "alice" },
			wantKind: errors.KindInvalidParty,
		},
		"challenged is not a student": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengedID = "tina" },
			wantKind: errors.KindInvalidParty,
		},
		"unknown student": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengedID = "ghost" },
			wantKind: errors.KindNotFound,
		},
		"different grades": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengedID = "frank" },
			wantKind: errors.KindGradeMismatch,
		},
		"advanced locked": {
			arrange:     func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.ChallengerID = "carol" },
			wantKind:    errors.KindDifficultyLocked,
			wantDetails: map[string]any{"required": int64(25), "have": int64(10), "missing": int64(15)},
		},
		"expert locked": {
			arrange:  func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.Difficulty = domain.DifficultyExpert },
			wantKind: errors.KindDifficultyLocked,
		},
		"wager above balance": {
			arrange:     func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.Wager = 35 },
			wantKind:    errors.KindInsufficientCurrency,
			wantDetails: map[string]any{"have": int64(30), "need": 35, "missing": int64(5)},
		},
		"not enough questions": {
			arrange:     func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) { req.Subject = "science" },
			wantKind:    errors.KindInsufficientQuestionPool,
			wantDetails: map[string]any{"available": 3, "required": 5},
		},
		"expert pool excludes advanced questions": {
			arrange: func(_ *testing.T, _ *fixture, req *challenge.CreateRequest) {
				req.ChallengerID = "dave"
				req.Difficulty = domain.DifficultyExpert
			},
			wantKind: errors.KindInsufficientQuestionPool,
		},
		"duplicate of an active challenge": {
			arrange: func(t *testing.T, f *fixture, _ *challenge.CreateRequest) {
				f.create(t, "bob", "alice")
			},
			wantKind: errors.KindDuplicateChallenge,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			req := valid
			if tt.arrange != nil {
				tt.arrange(t, f, &req)
			}

			c, err := f.svc.Create(context.Background(), req)
			if tt.wantKind != errors.KindUnknown {
				require.Error(t, err)
				e := errors.Convert(err)
				assert.Equal(t, tt.wantKind, e.Kind, e.Error())
				for k, v := range tt.wantDetails {
					assert.Equal(t, v, e.Details[k], k)
				}
				return
			}

			require.NoError(t, err)
			assert.Equal(t, domain.ChallengePending, c.Status)
			assert.Equal(t, "5", c.Grade)
			assert.Equal(t, "bring it", c.Message)
			assert.Equal(t, f.clock.Now().Add(24*time.Hour), c.ExpireTime)

			require.Len(t, c.Questions, 5)
			seen := map[string]bool{}
			for i, q := range c.Questions {
				assert.Equal(t, i+1, q.Order)
				assert.False(t, seen[q.QuestionID], "questions are drawn without replacement")
				seen[q.QuestionID] = true
				assert.NotContains(t, q.QuestionID, "beginner")
			}

			stored, err := f.store.Challenge(context.Background(), c.ChallengeID)
			require.NoError(t, err)
			assert.Equal(t, c.ChallengeID, stored.ChallengeID)

			f.bus.Stop()
			assert.Equal(t, []string{domain.EventNameChallengeCreated}, f.events.Names())
		})
	}
}

func TestService_CreateReplacesExpiredChallenge(t *testing.T) {
	f := newFixture(t)
	old := f.create(t, "alice", "bob")

	f.clock.Advance(25 * time.Hour)
	c := f.create(t, "bob", "alice")
	assert.NotEqual(t, old.ChallengeID, c.ChallengeID)

	stored, err := f.store.Challenge(context.Background(), old.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeExpired, stored.Status)

	f.bus.Stop()
	assert.ElementsMatch(t, []string{
		domain.EventNameChallengeCreated,
		domain.EventNameChallengeExpired,
		domain.EventNameChallengeCreated,
	}, f.events.Names())
}

func TestService_Accept(t *testing.T) {
	t.Run("creates exactly one battle", func(t *testing.T) {
		f := newFixture(t)
		c := f.create(t, "alice", "bob")

		res, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeAccepted, res.Challenge.Status)
		assert.Equal(t, res.BattleID, res.Challenge.BattleID)
		require.NotNil(t, res.Challenge.AcceptTime)

		b, err := f.store.Battle(context.Background(), res.BattleID)
		require.NoError(t, err)
		assert.Equal(t, domain.BattleWaiting, b.Status)
		assert.Equal(t, c.ChallengeID, b.ChallengeID)
		assert.Equal(t, 5, b.Settings.QuestionCount)
		assert.Equal(t, domain.DifficultyAdvanced, b.Settings.Difficulty)
		assert.Equal(t, 30, b.Settings.AllowedSeconds)
		require.Len(t, b.Participants, 2)
		assert.Equal(t, "alice", b.Participants[0].StudentID)
		assert.Equal(t, domain.PartyChallenger, b.Participants[0].Role)
		assert.Equal(t, "bob", b.Participants[1].StudentID)

		_, err = f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
		assert.Equal(t, errors.KindNotPending, errors.KindOf(err))
	})

	t.Run("only the challenged student may accept", func(t *testing.T) {
		f := newFixture(t)
		c := f.create(t, "alice", "bob")

		_, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "alice"})
		assert.Equal(t, errors.KindNotChallengedParty, errors.KindOf(err))
	})

	t.Run("unknown challenge", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: "nope", ActorID: "bob"})
		assert.Equal(t, errors.KindNotFound, errors.KindOf(err))
	})

	t.Run("challenged cannot afford the wager", func(t *testing.T) {
		f := newFixture(t)
		c := f.create(t, "alice", "erin")

		_, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "erin"})
		e := errors.Convert(err)
		assert.Equal(t, errors.KindInsufficientCurrency, e.Kind)
		assert.Equal(t, int64(2), e.Details["missing"])
	})

	t.Run("expired challenge is expired on access", func(t *testing.T) {
		f := newFixture(t)
		c := f.create(t, "alice", "bob")
		f.clock.Advance(24 * time.Hour)

		_, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
		assert.Equal(t, errors.KindChallengeExpired, errors.KindOf(err))

		stored, err := f.store.Challenge(context.Background(), c.ChallengeID)
		require.NoError(t, err)
		assert.Equal(t, domain.ChallengeExpired, stored.Status)

		_, err = f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
		assert.Equal(t, errors.KindNotPending, errors.KindOf(err))
	})

	t.Run("racing accepts create one battle", func(t *testing.T) {
		f := newFixture(t)
		c := f.create(t, "alice", "bob")

		var (
			wg  sync.WaitGroup
			mu  sync.Mutex
			ids []string
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
				if err == nil {
					mu.Lock()
					ids = append(ids, res.BattleID)
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, ids, 1)
	})
}

func TestService_DeclineAndCancel(t *testing.T) {
	tests := map[string]struct {
		act        func(f *fixture, c *domain.Challenge) error
		wantKind   errors.Kind
		wantStatus domain.ChallengeStatus
		wantGone   bool
	}{
		"challenged declines": {
			act: func(f *fixture, c *domain.Challenge) error {
				_, err := f.svc.Decline(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
				return err
			},
			wantStatus: domain.ChallengeDeclined,
		},
		"challenger cannot decline": {
			act: func(f *fixture, c *domain.Challenge) error {
				_, err := f.svc.Decline(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "alice"})
				return err
			},
			wantKind:   errors.KindNotChallengedParty,
			wantStatus: domain.ChallengePending,
		},
		"challenger cancels": {
			act: func(f *fixture, c *domain.Challenge) error {
				_, err := f.svc.Cancel(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "alice"})
				return err
			},
			wantGone: true,
		},
		"challenged cannot cancel": {
			act: func(f *fixture, c *domain.Challenge) error {
				_, err := f.svc.Cancel(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
				return err
			},
			wantKind:   errors.KindNotChallenger,
			wantStatus: domain.ChallengePending,
		},
		"cancel after accept": {
			act: func(f *fixture, c *domain.Challenge) error {
				if _, err := f.svc.Accept(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"}); err != nil {
					return err
				}
				_, err := f.svc.Cancel(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "alice"})
				return err
			},
			wantKind:   errors.KindNotPending,
			wantStatus: domain.ChallengeAccepted,
		},
		"decline after expiry": {
			act: func(f *fixture, c *domain.Challenge) error {
				f.clock.Advance(48 * time.Hour)
				_, err := f.svc.Decline(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
				return err
			},
			wantKind:   errors.KindChallengeExpired,
			wantStatus: domain.ChallengeExpired,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			c := f.create(t, "alice", "bob")

			err := tt.act(f, c)
			assert.Equal(t, tt.wantKind, errors.KindOf(err))

			stored, err := f.store.Challenge(context.Background(), c.ChallengeID)
			if tt.wantGone {
				assert.ErrorIs(t, err, store.ErrNotFound)
				f.create(t, "bob", "alice")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, stored.Status)
		})
	}
}

func TestService_ListPending(t *testing.T) {
	f := newFixture(t)
	sent := f.create(t, "alice", "bob")
	f.clock.Advance(time.Hour)
	received := f.create(t, "dave", "alice")

	p, err := f.svc.ListPending(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, p.Sent, 1)
	assert.Equal(t, sent.ChallengeID, p.Sent[0].ChallengeID)
	require.Len(t, p.Received, 1)
	assert.Equal(t, received.ChallengeID, p.Received[0].ChallengeID)

	f.clock.Advance(23*time.Hour + time.Minute)

	p, err = f.svc.ListPending(context.Background(), "alice")
	require.NoError(t, err)
	assert.Empty(t, p.Sent, "alice's challenge to bob is past its expiry")
	assert.Len(t, p.Received, 1)

	stored, err := f.store.Challenge(context.Background(), sent.ChallengeID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChallengeExpired, stored.Status)
}

func TestService_History(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, opp := range []string{"bob", "carol", "dave"} {
		c := f.create(t, "alice", opp)
		_, err := f.svc.Decline(ctx, challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: opp})
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}
	f.create(t, "alice", "erin")

	h, err := f.svc.History(ctx, challenge.HistoryRequest{StudentID: "alice", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, h.Total)
	require.Len(t, h.Challenges, 2)
	assert.Equal(t, "dave", h.Challenges[0].ChallengedID)
	assert.Equal(t, domain.BattleStats{Declined: 3}, h.Stats)

	h, err = f.svc.History(ctx, challenge.HistoryRequest{StudentID: "alice", Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, h.Challenges, 1)
	assert.Equal(t, "bob", h.Challenges[0].ChallengedID)

	h, err = f.svc.History(ctx, challenge.HistoryRequest{StudentID: "frank"})
	require.NoError(t, err)
	assert.NotNil(t, h.Challenges)
	assert.Empty(t, h.Challenges)
	assert.Equal(t, 20, h.PageSize)
}

func TestService_Opponents(t *testing.T) {
	f := newFixture(t)
	f.create(t, "dave", "alice")

	res, err := f.svc.Opponents(context.Background(), challenge.OpponentsRequest{StudentID: "alice", Subject: "math"})
	require.NoError(t, err)

	var ids []string
	for _, o := range res.Opponents {
		ids = append(ids, o.Student.StudentID)
		if o.Student.StudentID == "bob" {
			assert.EqualValues(t, 40, o.Currency)
		}
	}
	assert.ElementsMatch(t, []string{"bob", "carol", "erin"}, ids, "excludes self, busy pairs, other grades and non-students")

	assert.EqualValues(t, 30, res.Currency)
	assert.True(t, res.Tiers[domain.DifficultyAdvanced].Unlocked)
	assert.False(t, res.Tiers[domain.DifficultyExpert].Unlocked)
	assert.EqualValues(t, 75, res.Tiers[domain.DifficultyExpert].Required)
	assert.Equal(t, 7, res.Pools[domain.DifficultyAdvanced])
	assert.Equal(t, 3, res.Pools[domain.DifficultyExpert])
}

func TestService_Get(t *testing.T) {
	f := newFixture(t)
	c := f.create(t, "alice", "bob")

	got, err := f.svc.Get(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, c.ChallengeID, got.ChallengeID)

	_, err = f.svc.Get(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "carol"})
	assert.Equal(t, errors.KindForbidden, errors.KindOf(err))
}

func TestService_ReadsExpireOverdueChallenges(t *testing.T) {
	tests := map[string]struct {
		read func(t *testing.T, f *fixture, c *domain.Challenge)
	}{
		"get": {
			read: func(t *testing.T, f *fixture, c *domain.Challenge) {
				got, err := f.svc.Get(context.Background(), challenge.ActionRequest{ChallengeID: c.ChallengeID, ActorID: "bob"})
				require.NoError(t, err)
				assert.Equal(t, domain.ChallengeExpired, got.Status)
			},
		},
		"opponents": {
			read: func(t *testing.T, f *fixture, c *domain.Challenge) {
				res, err := f.svc.Opponents(context.Background(), challenge.OpponentsRequest{StudentID: "alice"})
				require.NoError(t, err)

				var ids []string
				for _, o := range res.Opponents {
					ids = append(ids, o.Student.StudentID)
				}
				assert.Contains(t, ids, "bob")
			},
		},
		"history": {
			read: func(t *testing.T, f *fixture, c *domain.Challenge) {
				h, err := f.svc.History(context.Background(), challenge.HistoryRequest{StudentID: "alice"})
				require.NoError(t, err)
				require.Len(t, h.Challenges, 1)
				assert.Equal(t, c.ChallengeID, h.Challenges[0].ChallengeID)
				assert.Equal(t, domain.ChallengeExpired, h.Challenges[0].Status)
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			c := f.create(t, "alice", "bob")
			f.clock.Advance(25 * time.Hour)

			tt.read(t, f, c)

			stored, err := f.store.Challenge(context.Background(), c.ChallengeID)
			require.NoError(t, err)
			assert.Equal(t, domain.ChallengeExpired, stored.Status)

			f.bus.Stop()
			assert.Contains(t, f.events.Names(), domain.EventNameChallengeExpired)
		})
	}
}
