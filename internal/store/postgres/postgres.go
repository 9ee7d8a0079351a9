// Package postgres stores challenges and battles as JSONB documents.
//
// Each document also projects the columns queries filter on. The partial
// unique index challenges_active_pair_idx rejects a second non-terminal
// challenge for the same unordered pair.
package postgres

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/store"
)

const codeUniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	db *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	t, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = stderrors.Join(err, t.Rollback(ctx))
		}
	}()

	if err = fn(&tx{q: t}); err != nil {
		return err
	}

	return t.Commit(ctx)
}

func (s *Store) Challenge(ctx context.Context, id string) (*domain.Challenge, error) {
	return getChallenge(ctx, s.db, `SELECT doc FROM challenges WHERE challenge_id = $1;`, id)
}

func (s *Store) Battle(ctx context.Context, id string) (*domain.Battle, error) {
	return getBattle(ctx, s.db, `SELECT doc FROM battles WHERE battle_id = $1;`, id)
}

func (s *Store) ListChallenges(ctx context.Context, f store.ChallengeFilter) ([]domain.Challenge, int, error) {
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}

	const (
		countStmt = `
SELECT COUNT(*)
FROM challenges
WHERE (challenger_id = $1 OR challenged_id = $1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2));`

		listStmt = `
SELECT doc
FROM challenges
WHERE (challenger_id = $1 OR challenged_id = $1)
  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
ORDER BY create_time DESC, challenge_id DESC
LIMIT NULLIF($3, 0) OFFSET $4;`
	)

	var total int
	if err := s.db.QueryRow(ctx, countStmt, f.StudentID, statuses).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count challenges: %w", err)
	}

	rows, err := s.db.Query(ctx, listStmt, f.StudentID, statuses, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list challenges: %w", err)
	}

	cs, err := pgx.CollectRows(rows, pgx.RowTo[domain.Challenge])
	if err != nil {
		return nil, 0, fmt.Errorf("list challenges: %w", err)
	}

	return cs, total, nil
}

func (s *Store) ActiveOpponents(ctx context.Context, studentID string, now time.Time) ([]string, error) {
	const stmt = `
SELECT CASE WHEN challenger_id = $1 THEN challenged_id ELSE challenger_id END
FROM challenges
WHERE (challenger_id = $1 OR challenged_id = $1)
  AND status IN ('pending', 'accepted', 'in-progress')
  AND NOT (status = 'pending' AND (doc->>'expire_time')::timestamptz <= $2);`

	rows, err := s.db.Query(ctx, stmt, studentID, now)
	if err != nil {
		return nil, fmt.Errorf("active opponents: %w", err)
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) ChallengeStats(ctx context.Context, studentID string) (domain.BattleStats, error) {
	const stmt = `
SELECT
	COUNT(*) FILTER (WHERE status = 'completed' AND winner_id = $1),
	COUNT(*) FILTER (WHERE status = 'completed' AND winner_id IS NOT NULL AND winner_id <> $1),
	COUNT(*) FILTER (WHERE status = 'completed' AND winner_id IS NULL),
	COUNT(*) FILTER (WHERE status = 'declined')
FROM challenges
WHERE challenger_id = $1 OR challenged_id = $1;`

	var st domain.BattleStats
	err := s.db.QueryRow(ctx, stmt, studentID).Scan(&st.Wins, &st.Losses, &st.Ties, &st.Declined)
	if err != nil {
		return domain.BattleStats{}, fmt.Errorf("challenge stats: %w", err)
	}
	return st, nil
}

func (s *Store) BattleCurrency(ctx context.Context, studentID string) (int64, error) {
	const stmt = `
SELECT COALESCE(SUM((p->'score'->>'total_currency')::bigint), 0)
FROM battles b, jsonb_array_elements(b.doc->'participants') p
WHERE b.status = 'completed' AND p->>'student_id' = $1;`

	var total int64
	if err := s.db.QueryRow(ctx, stmt, studentID).Scan(&total); err != nil {
		return 0, fmt.Errorf("battle currency: %w", err)
	}
	return total, nil
}

type tx struct {
	q querier
}

func (t *tx) Challenge(ctx context.Context, id string) (*domain.Challenge, error) {
	return getChallenge(ctx, t.q, `SELECT doc FROM challenges WHERE challenge_id = $1 FOR UPDATE;`, id)
}

func (t *tx) ActiveChallengeBetween(ctx context.Context, a, b string) (*domain.Challenge, error) {
	const stmt = `
SELECT doc
FROM challenges
WHERE LEAST(challenger_id, challenged_id) = LEAST($1::text, $2::text)
  AND GREATEST(challenger_id, challenged_id) = GREATEST($1::text, $2::text)
  AND status IN ('pending', 'accepted', 'in-progress')
FOR UPDATE;`

	return getChallenge(ctx, t.q, stmt, a, b)
}

func (t *tx) InsertChallenge(ctx context.Context, c *domain.Challenge) error {
	const stmt = `
INSERT INTO challenges (challenge_id, challenger_id, challenged_id, status, winner_id, create_time, doc)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7);`

	_, err := t.q.Exec(ctx, stmt, c.ChallengeID, c.ChallengerID, c.ChallengedID, string(c.Status), c.WinnerID, c.CreateTime, c)
	return mapWriteErr("insert challenge", err)
}

func (t *tx) UpdateChallenge(ctx context.Context, c *domain.Challenge) error {
	const stmt = `
UPDATE challenges
SET status = $2, winner_id = NULLIF($3, ''), doc = $4
WHERE challenge_id = $1;`

	tag, err := t.q.Exec(ctx, stmt, c.ChallengeID, string(c.Status), c.WinnerID, c)
	if err != nil {
		return mapWriteErr("update challenge", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) DeleteChallenge(ctx context.Context, id string) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM challenges WHERE challenge_id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (t *tx) Battle(ctx context.Context, id string) (*domain.Battle, error) {
	return getBattle(ctx, t.q, `SELECT doc FROM battles WHERE battle_id = $1 FOR UPDATE;`, id)
}

func (t *tx) InsertBattle(ctx context.Context, b *domain.Battle) error {
	const stmt = `
INSERT INTO battles (battle_id, challenge_id, status, create_time, doc)
VALUES ($1, $2, $3, $4, $5);`

	_, err := t.q.Exec(ctx, stmt, b.BattleID, b.ChallengeID, string(b.Status), b.CreateTime, b)
	return mapWriteErr("insert battle", err)
}

func (t *tx) UpdateBattle(ctx context.Context, b *domain.Battle) error {
	const stmt = `UPDATE battles SET status = $2, doc = $3 WHERE battle_id = $1;`

	tag, err := t.q.Exec(ctx, stmt, b.BattleID, string(b.Status), b)
	if err != nil {
		return mapWriteErr("update battle", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func getChallenge(ctx context.Context, q querier, stmt string, args ...any) (*domain.Challenge, error) {
	var c domain.Challenge
	err := q.QueryRow(ctx, stmt, args...).Scan(&c)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return &c, nil
}

func getBattle(ctx context.Context, q querier, stmt string, args ...any) (*domain.Battle, error) {
	var b domain.Battle
	err := q.QueryRow(ctx, stmt, args...).Scan(&b)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get battle: %w", err)
	}
	return &b, nil
}

func mapWriteErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, store.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
