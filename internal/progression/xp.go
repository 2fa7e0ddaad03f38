package progression

import (
	"math"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

// maxLevelUps bounds a single grant.
const maxLevelUps = 1000

// Threshold is the XP needed to leave level.
func Threshold(cfg config.Progression, level int) int64 {
	if level < 1 {
		level = 1
	}
	return int64(math.Floor(cfg.LevelBase * math.Pow(cfg.LevelGrowth, float64(level-1))))
}

// XPFor returns the configured XP for a source.
func XPFor(cfg config.Progression, source string) int64 {
	return cfg.XP[source]
}

// GrantXP adds amount and applies every level-up it crosses, carrying the
// remainder. Levelling up never grants XP itself. Returns levels gained.
func GrantXP(cfg config.Progression, p *model.Player, amount int64) int {
	if amount <= 0 {
		return 0
	}
	if p.Level < 1 {
		p.Level = 1
	}
	p.XP += amount

	gained := 0
	for gained < maxLevelUps {
		need := Threshold(cfg, p.Level)
		if need <= 0 || p.XP < need {
			break
		}
		p.XP -= need
		p.Level++
		gained++
	}
	return gained
}
