package progression

import (
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

// Metric reads a named achievement metric.
func Metric(p *model.Player, s model.Stats, name string) float64 {
	switch name {
	case "clicks":
		return float64(s.TotalClicks)
	case "parcels_bought":
		return float64(s.ParcelsBought)
	case "rigs_installed":
		return float64(s.RigsInstalled)
	case "analyses":
		return float64(s.Analyses)
	case "oil_sold":
		return float64(s.TotalOilSold)
	case "total_earned":
		return s.TotalEarned.InexactFloat64()
	case "level":
		return float64(p.Level)
	case "streak":
		return float64(s.StreakDays)
	}
	return 0
}

// Evaluate unlocks every achievement whose condition now holds, applies its
// reward and grants achievement XP. Unlocked achievements are recorded and
// never evaluated again.
func Evaluate(cfg config.Progression, p *model.Player, s model.Stats) []config.Achievement {
	var unlocked []config.Achievement
	for _, a := range cfg.Achievements {
		if p.HasAchievement(a.ID) {
			continue
		}
		if Metric(p, s, a.Metric) < a.Threshold {
			continue
		}
		p.Achievements = append(p.Achievements, a.ID)
		Grant(p, a.Reward)
		unlocked = append(unlocked, a)
	}
	for range unlocked {
		GrantXP(cfg, p, XPFor(cfg, config.XPAchievement))
	}
	return unlocked
}
