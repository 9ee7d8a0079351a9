package currency

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAttempts reads completed test attempts owned by the test-taking service.
type PostgresAttempts struct {
	db *pgxpool.Pool
}

func NewPostgresAttempts(db *pgxpool.Pool) *PostgresAttempts {
	return &PostgresAttempts{db: db}
}

func (p *PostgresAttempts) AttemptCurrency(ctx context.Context, studentID string) (int64, error) {
	const stmt = `
SELECT COALESCE(SUM(GREATEST(currency_earned, 0)), 0)
FROM test_attempts
WHERE student_id = $1 AND status = 'completed';`

	var total int64
	if err := p.db.QueryRow(ctx, stmt, studentID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}
