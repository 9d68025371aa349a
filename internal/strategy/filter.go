package strategy

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/optionsrun/internal/models"
)

// applyConstraints drops candidates that violate the profile, in order:
// max loss, minimum POP, allowed list, banned list. Each removal is audited.
func applyConstraints(in []models.Strategy, profile *models.UserProfile) ([]models.Strategy, []Removal) {
	kept := in
	var removed []Removal

	drop := func(pass func(models.Strategy) (bool, string)) {
		next := make([]models.Strategy, 0, len(kept))
		for _, s := range kept {
			ok, reason := pass(s)
			if ok {
				next = append(next, s)
				continue
			}
			removed = append(removed, Removal{Strategy: s.Name, Reason: reason})
			log.Debug().Str("strategy", s.Name).Str("reason", reason).Msg("Candidate removed by profile constraint")
		}
		kept = next
	}

	drop(func(s models.Strategy) (bool, string) {
		return s.MaxLoss <= profile.MaxLossPerTrade,
			fmt.Sprintf("max loss %.2f exceeds per-trade limit %.2f", s.MaxLoss, profile.MaxLossPerTrade)
	})

	if profile.MinPOP != nil {
		minPOP := *profile.MinPOP
		drop(func(s models.Strategy) (bool, string) {
			return s.POP >= minPOP, fmt.Sprintf("pop %.0f%% below minimum %.0f%%", s.POP, minPOP)
		})
	}

	if len(profile.AllowedStrategies) > 0 {
		allowed := toSet(profile.AllowedStrategies)
		drop(func(s models.Strategy) (bool, string) {
			return allowed[s.Name], "not in allowed strategies"
		})
	}

	if len(profile.BannedStrategies) > 0 {
		banned := toSet(profile.BannedStrategies)
		drop(func(s models.Strategy) (bool, string) {
			return !banned[s.Name], "strategy is banned by profile"
		})
	}

	return kept, removed
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
