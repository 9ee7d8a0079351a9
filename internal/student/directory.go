// Package student reads the user directory owned by the account service.
package student

import (
	"context"
	"sort"

	"github.com/victornm/raindrop/internal/domain"
	"github.com/victornm/raindrop/internal/errors"
)

type Directory interface {
	Student(ctx context.Context, studentID string) (*domain.Student, error)
	StudentsInGrade(ctx context.Context, grade string) ([]domain.Student, error)
}

// Static is a Directory over a fixed set of users.
type Static map[string]domain.Student

func NewStatic(students ...domain.Student) Static {
	s := make(Static, len(students))
	for _, st := range students {
		s[st.StudentID] = st
	}
	return s
}

func (s Static) Student(_ context.Context, studentID string) (*domain.Student, error) {
	st, ok := s[studentID]
	if !ok {
		return nil, errors.NotFound("student not found: id=%s", studentID)
	}
	return &st, nil
}

func (s Static) StudentsInGrade(_ context.Context, grade string) ([]domain.Student, error) {
	var out []domain.Student
	for _, st := range s {
		if st.Grade == grade && st.Role == domain.RoleStudent {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
