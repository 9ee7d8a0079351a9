package battle

import (
	"github.com/shopspring/decimal"

	"github.com/victornm/raindrop/internal/domain"
)

var basePoints = map[domain.Difficulty]int{
	domain.DifficultyExpert:   100,
	domain.DifficultyAdvanced: 80,
}

const defaultBasePoints = 60

// currencyBands lists fast, medium and slow rewards per difficulty.
var currencyBands = map[domain.Difficulty][3]int{
	domain.DifficultyExpert:   {5, 4, 3},
	domain.DifficultyAdvanced: {4, 3, 2},
}

var defaultCurrencyBands = [3]int{3, 2, 1}

// Scorer turns one answer into points and currency. It is deterministic.
type Scorer struct {
	AllowedSeconds int
	// BonusRate is the number of points per second left in the window.
	BonusRate decimal.Decimal
}

type Scored struct {
	Correct   bool
	Points    int
	Currency  int
	TimeSpent int
}

func (s Scorer) Score(q domain.Question, selected string, timeSpent int) Scored {
	spent := min(max(timeSpent, 0), s.AllowedSeconds)
	out := Scored{TimeSpent: spent}

	if !q.IsCorrect(selected) {
		return out
	}

	out.Correct = true
	out.Points = s.points(q.Difficulty, spent)
	out.Currency = s.currency(q.Difficulty, spent)
	return out
}

func (s Scorer) points(d domain.Difficulty, spent int) int {
	base, ok := basePoints[d]
	if !ok {
		base = defaultBasePoints
	}

	bonus := decimal.NewFromInt(int64(s.AllowedSeconds - spent)).Mul(s.BonusRate).Round(0)
	if bonus.IsNegative() {
		bonus = decimal.Zero
	}

	return base + int(bonus.IntPart())
}

func (s Scorer) currency(d domain.Difficulty, spent int) int {
	bands, ok := currencyBands[d]
	if !ok {
		bands = defaultCurrencyBands
	}

	switch {
	case spent*3 <= s.AllowedSeconds:
		return bands[0]
	case spent*3 <= s.AllowedSeconds*2:
		return bands[1]
	default:
		return bands[2]
	}
}
