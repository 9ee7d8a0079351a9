// Package unlock maps accumulated currency to the challenge tiers a student may use.
// Both the opponents listing and challenge creation consult this package.
package unlock

import (
	"github.com/victornm/raindrop/internal/domain"
)

// Thresholds are the minimum currency totals per tier.
var Thresholds = map[domain.Difficulty]int64{
	domain.DifficultyAdvanced: 25,
	domain.DifficultyExpert:   75,
}

type TierInfo struct {
	Unlocked bool  `json:"unlocked"`
	Required int64 `json:"required"`
}

// AvailableTiers reports, for every tier, whether total unlocks it and what it requires.
func AvailableTiers(total int64) map[domain.Difficulty]TierInfo {
	out := make(map[domain.Difficulty]TierInfo, len(domain.Tiers))
	for _, t := range domain.Tiers {
		req := Thresholds[t]
		out[t] = TierInfo{Unlocked: total >= req, Required: req}
	}
	return out
}

// CanAccessDifficulty reports whether total unlocks tier. Unknown tiers are never accessible.
func CanAccessDifficulty(total int64, tier domain.Difficulty) bool {
	info, ok := AvailableTiers(total)[tier]
	return ok && info.Unlocked
}

// Required returns the threshold of tier, or false when tier is not a challenge tier.
func Required(tier domain.Difficulty) (int64, bool) {
	req, ok := Thresholds[tier]
	return req, ok
}
