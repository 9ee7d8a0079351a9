package student

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Student(ctx context.Context, studentID string) (*domain.Student, error) {
	const stmt = `SELECT student_id, name, grade, role FROM students WHERE student_id = $1;`

	var st domain.Student
	err := p.db.QueryRow(ctx, stmt, studentID).Scan(&st.StudentID, &st.Name, &st.Grade, &st.Role)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("student not found: id=%s", studentID)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (p *Postgres) StudentsInGrade(ctx context.Context, grade string) ([]domain.Student, error) {
	const stmt = `
SELECT student_id, name, grade, role
FROM students
WHERE grade = $1 AND role = 'student'
ORDER BY name;`

	rows, err := p.db.Query(ctx, stmt, grade)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Student, error) {
		var st domain.Student
		err := r.Scan(&st.StudentID, &st.Name, &st.Grade, &st.Role)
		return st, err
	})
}
