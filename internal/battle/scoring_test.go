package battle

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/victornm/raindrop/internal/domain"
)

func TestScorer_Score(t *testing.T) {
	s := Scorer{AllowedSeconds: 30, BonusRate: decimal.NewFromInt(1)}

	q := func(d domain.Difficulty) domain.Question {
		return domain.Question{QuestionID: "q", Difficulty: d, CorrectAnswer: "Paris"}
	}

	tests := map[string]struct {
		question domain.Question
		selected string
		spent    int
		want     Scored
	}{
		"expert fast": {
			question: q(domain.DifficultyExpert), selected: "Paris", spent: 8,
			want: Scored{Correct: true, Points: 122, Currency: 5, TimeSpent: 8},
		},
		"advanced fast band boundary": {
			question: q(domain.DifficultyAdvanced), selected: "Paris", spent: 10,
			want: Scored{Correct: true, Points: 100, Currency: 4, TimeSpent: 10},
		},
		"advanced medium": {
			question: q(domain.DifficultyAdvanced), selected: " Paris ", spent: 20,
			want: Scored{Correct: true, Points: 90, Currency: 3, TimeSpent: 20},
		},
		"advanced slow": {
			question: q(domain.DifficultyAdvanced), selected: "Paris", spent: 21,
			want: Scored{Correct: true, Points: 89, Currency: 2, TimeSpent: 21},
		},
		"regular question at the full window earns no bonus": {
			question: q(domain.DifficultyBeginner), selected: "Paris", spent: 30,
			want: Scored{Correct: true, Points: 60, Currency: 1, TimeSpent: 30},
		},
		"overlong time is clamped": {
			question: q(domain.DifficultyExpert), selected: "Paris", spent: 300,
			want: Scored{Correct: true, Points: 100, Currency: 3, TimeSpent: 30},
		},
		"negative time is clamped": {
			question: q(domain.DifficultyExpert), selected: "Paris", spent: -5,
			want: Scored{Correct: true, Points: 130, Currency: 5, TimeSpent: 0},
		},
		"wrong answer": {
			question: q(domain.DifficultyExpert), selected: "Lyon", spent: 2,
			want: Scored{TimeSpent: 2},
		},
		"empty answer": {
			question: q(domain.DifficultyExpert), selected: "", spent: 30,
			want: Scored{TimeSpent: 30},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, s.Score(tt.question, tt.selected, tt.spent))
		})
	}
}

func TestScorer_Ordering(t *testing.T) {
	s := Scorer{AllowedSeconds: 30, BonusRate: decimal.RequireFromString("0.5")}

	for spent := 0; spent <= 30; spent++ {
		expert := s.Score(domain.Question{Difficulty: domain.DifficultyExpert, CorrectAnswer: "a"}, "a", spent)
		advanced := s.Score(domain.Question{Difficulty: domain.DifficultyAdvanced, CorrectAnswer: "a"}, "a", spent)
		regular := s.Score(domain.Question{Difficulty: domain.DifficultyIntermediate, CorrectAnswer: "a"}, "a", spent)

		assert.Greater(t, expert.Points, advanced.Points)
		assert.Greater(t, advanced.Points, regular.Points)
		assert.GreaterOrEqual(t, expert.Currency, advanced.Currency)
		assert.GreaterOrEqual(t, advanced.Currency, regular.Currency)

		if spent > 0 {
			faster := s.Score(domain.Question{Difficulty: domain.DifficultyExpert, CorrectAnswer: "a"}, "a", spent-1)
			assert.GreaterOrEqual(t, faster.Points, expert.Points)
			assert.GreaterOrEqual(t, faster.Currency, expert.Currency)
		}
	}
}
