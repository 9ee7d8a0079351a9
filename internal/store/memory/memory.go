// Package memory is a process-local store.Store used by tests and single-node demos.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/store"
)

// Store serializes every transaction behind one mutex. Writes are staged on
// the transaction and only become visible when fn returns nil.
type Store struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
	battles    map[string]*domain.Battle
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		challenges: make(map[string]*domain.Challenge),
		battles:    make(map[string]*domain.Battle),
	}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	t := &tx{
		s:          s,
		challenges: make(map[string]*domain.Challenge),
		battles:    make(map[string]*domain.Battle),
	}
	if err := fn(t); err != nil {
		return err
	}

	for id, c := range t.challenges {
		if c == nil {
			delete(s.challenges, id)
			continue
		}
		s.challenges[id] = c
	}
	for id, b := range t.battles {
		s.battles[id] = b
	}
	return nil
}

func (s *Store) Challenge(_ context.Context, id string) (*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) Battle(_ context.Context, id string) (*domain.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.battles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return b.Clone(), nil
}

func (s *Store) ListChallenges(_ context.Context, f store.ChallengeFilter) ([]domain.Challenge, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []domain.Challenge
	for _, c := range s.challenges {
		if !c.Involves(f.StudentID) {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, c.Status) {
			continue
		}
		matched = append(matched, *c.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreateTime.Equal(matched[j].CreateTime) {
			return matched[i].CreateTime.After(matched[j].CreateTime)
		}
		return matched[i].ChallengeID > matched[j].ChallengeID
	})

	total := len(matched)
	lo := min(f.Offset, total)
	hi := total
	if f.Limit > 0 {
		hi = min(lo+f.Limit, total)
	}
	return matched[lo:hi], total, nil
}

func (s *Store) ActiveOpponents(_ context.Context, studentID string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for _, c := range s.challenges {
		if c.Status.Active() && !c.IsExpired(now) && c.Involves(studentID) {
			out = append(out, c.Opponent(studentID))
		}
	}
	return out, nil
}

func (s *Store) ChallengeStats(_ context.Context, studentID string) (domain.BattleStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs := make([]domain.Challenge, 0, len(s.challenges))
	for _, c := range s.challenges {
		cs = append(cs, *c)
	}
	return store.StatsOf(studentID, cs), nil
}

func (s *Store) BattleCurrency(_ context.Context, studentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, b := range s.battles {
		if b.Status != domain.BattleCompleted {
			continue
		}
		if p, ok := b.Participant(studentID); ok {
			total += int64(p.Score.TotalCurrency)
		}
	}
	return total, nil
}

type tx struct {
	s *Store
	// staged writes; a nil challenge marks a deletion
	challenges map[string]*domain.Challenge
	battles    map[string]*domain.Battle
}

func (t *tx) challenge(id string) (*domain.Challenge, bool) {
	if c, ok := t.challenges[id]; ok {
		return c, c != nil
	}
	c, ok := t.s.challenges[id]
	return c, ok
}

func (t *tx) Challenge(_ context.Context, id string) (*domain.Challenge, error) {
	c, ok := t.challenge(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return c.Clone(), nil
}

func (t *tx) ActiveChallengeBetween(_ context.Context, a, b string) (*domain.Challenge, error) {
	for id := range t.ids() {
		c, ok := t.challenge(id)
		if ok && c.Status.Active() && c.Involves(a) && c.Involves(b) {
			return c.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) ids() map[string]struct{} {
	ids := make(map[string]struct{}, len(t.s.challenges)+len(t.challenges))
	for id := range t.s.challenges {
		ids[id] = struct{}{}
	}
	for id := range t.challenges {
		ids[id] = struct{}{}
	}
	return ids
}

func (t *tx) InsertChallenge(ctx context.Context, c *domain.Challenge) error {
	if _, ok := t.challenge(c.ChallengeID); ok {
		return store.ErrConflict
	}
	if c.Status.Active() {
		if _, err := t.ActiveChallengeBetween(ctx, c.ChallengerID, c.ChallengedID); err == nil {
			return store.ErrConflict
		}
	}
	t.challenges[c.ChallengeID] = c.Clone()
	return nil
}

func (t *tx) UpdateChallenge(_ context.Context, c *domain.Challenge) error {
	if _, ok := t.challenge(c.ChallengeID); !ok {
		return store.ErrNotFound
	}
	t.challenges[c.ChallengeID] = c.Clone()
	return nil
}

func (t *tx) DeleteChallenge(_ context.Context, id string) error {
	if _, ok := t.challenge(id); !ok {
		return store.ErrNotFound
	}
	t.challenges[id] = nil
	return nil
}

func (t *tx) battle(id string) (*domain.Battle, bool) {
	if b, ok := t.battles[id]; ok {
		return b, true
	}
	b, ok := t.s.battles[id]
	return b, ok
}

func (t *tx) Battle(_ context.Context, id string) (*domain.Battle, error) {
	b, ok := t.battle(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return b.Clone(), nil
}

func (t *tx) InsertBattle(_ context.Context, b *domain.Battle) error {
	if _, ok := t.battle(b.BattleID); ok {
		return store.ErrConflict
	}
	for _, existing := range t.s.battles {
		if existing.ChallengeID == b.ChallengeID {
			return store.ErrConflict
		}
	}
	for _, staged := range t.battles {
		if staged.ChallengeID == b.ChallengeID {
			return store.ErrConflict
		}
	}
	t.battles[b.BattleID] = b.Clone()
	return nil
}

func (t *tx) UpdateBattle(_ context.Context, b *domain.Battle) error {
	if _, ok := t.battle(b.BattleID); !ok {
		return store.ErrNotFound
	}
	t.battles[b.BattleID] = b.Clone()
	return nil
}
