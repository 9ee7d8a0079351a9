package question

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

// Postgres reads the questions table owned by the authoring service.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) ListIDs(ctx context.Context, f Filter) ([]string, error) {
	const stmt = `
SELECT question_id
FROM questions
WHERE grade = $1 AND subject = $2 AND difficulty = ANY($3) AND active
ORDER BY question_id;`

	diffs := make([]string, 0, len(f.Difficulties))
	for _, d := range f.Difficulties {
		diffs = append(diffs, string(d))
	}

	rows, err := p.db.Query(ctx, stmt, f.Grade, f.Subject, diffs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *Postgres) Get(ctx context.Context, ids ...string) ([]domain.Question, error) {
	const stmt = `SELECT question_id, doc FROM questions WHERE question_id = ANY($1);`

	rows, err := p.db.Query(ctx, stmt, ids)
	if err != nil {
		return nil, fmt.Errorf("get questions: %w", err)
	}

	byID := make(map[string]domain.Question, len(ids))
	_, err = pgx.CollectRows(rows, func(r pgx.CollectableRow) (struct{}, error) {
		var (
			id  string
			raw []byte
			q   domain.Question
		)
		if err := r.Scan(&id, &raw); err != nil {
			return struct{}{}, err
		}
		if err := json.Unmarshal(raw, &q); err != nil {
			return struct{}{}, fmt.Errorf("unmarshal question %s: %w", id, err)
		}
		q.QuestionID = id
		byID[id] = q
		return struct{}{}, nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, errors.NotFound("question not found: id=%s", id)
		}
		out = append(out, q)
	}
	return out, nil
}
