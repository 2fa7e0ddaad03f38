package game

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/land"
	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/progression"
)

const dayLayout = "2006-01-02"

// NewState builds a fresh game: starting balance, every configured company
// and the free first batch of parcels.
func NewState(cfg *config.Config, rng *rand.Rand, now time.Time) model.State {
	st := model.State{
		Player: model.Player{
			Balance:      decimal.NewFromInt(cfg.Progression.StartingBalance),
			AvailableOil: decimal.Zero,
			Skills:       make(map[string]int, len(cfg.Progression.Skills)),
			Level:        1,
			Bonuses:      map[string]model.Bonus{},
			Achievements: []string{},
		},
		Parcels:        []model.Parcel{},
		NextParcelID:   1,
		Allowance:      model.Allowance{Units: cfg.Land.RefreshMax, Watermark: now},
		Stats:          model.Stats{StreakDays: 1, LastPlayDay: now.UTC().Format(dayLayout)},
		CreatedAt:      now,
		LastOnlineTime: now,
	}
	for _, s := range cfg.Progression.Skills {
		st.Player.Skills[s.ID] = 0
	}
	for _, c := range cfg.Market.Companies {
		st.Companies = append(st.Companies, market.NewCompany(c, rng))
	}
	land.NewGenerator(cfg.Land, rng).Batch(&st, cfg.Land.BatchSize, now)
	st.Generated = true
	return st
}

// Normalize repairs invariant violations in place and returns the kinds of
// repair applied. It is run on every loaded state.
func Normalize(cfg *config.Config, st *model.State, rng *rand.Rand, now time.Time) []string {
	var kinds []string
	clamp := func(kind string) {
		kinds = append(kinds, kind)
		metrics.InvariantClamps.WithLabelValues(kind).Inc()
	}

	p := &st.Player
	if p.Balance.IsNegative() {
		p.Balance = decimal.Zero
		clamp("balance")
	}
	if !p.Balance.Equal(p.Balance.Floor()) {
		p.Balance = p.Balance.Floor()
		clamp("balance_fraction")
	}
	if p.AvailableOil.IsNegative() {
		p.AvailableOil = decimal.Zero
		clamp("inventory")
	}
	if p.Level < 1 {
		p.Level = 1
		clamp("level")
	}
	if p.XP < 0 {
		p.XP = 0
		clamp("xp")
	}
	if p.Skills == nil {
		p.Skills = map[string]int{}
	}
	for _, s := range cfg.Progression.Skills {
		level, ok := p.Skills[s.ID]
		switch {
		case !ok:
			p.Skills[s.ID] = 0
		case level < 0:
			p.Skills[s.ID] = 0
			clamp("skill_level")
		case s.MaxLevel > 0 && level > s.MaxLevel:
			p.Skills[s.ID] = s.MaxLevel
			clamp("skill_level")
		}
	}
	if p.Achievements == nil {
		p.Achievements = []string{}
	}
	if deduped := dedupe(p.Achievements); len(deduped) != len(p.Achievements) {
		p.Achievements = deduped
		clamp("achievements")
	}
	if p.Bonuses == nil {
		p.Bonuses = map[string]model.Bonus{}
	}
	if len(p.Bonuses) == 0 && len(p.Achievements) > 0 {
		for _, a := range cfg.Progression.Achievements {
			if p.HasAchievement(a.ID) {
				progression.Grant(p, a.Reward)
			}
		}
		clamp("bonuses_rebuilt")
	}

	var maxID int64
	for i := range st.Parcels {
		pc := &st.Parcels[i]
		maxID = max(maxID, pc.ID)
		if pc.Rigs == nil {
			pc.Rigs = []model.Rig{}
		}
		if pc.TotalOil < 0 {
			pc.TotalOil = 0
			clamp("reserve")
		}
		if pc.CurrentOil < 0 || pc.CurrentOil > pc.TotalOil {
			pc.CurrentOil = max(0, min(pc.CurrentOil, pc.TotalOil))
			clamp("reserve")
		}
		if pc.Depleted != (pc.CurrentOil == 0) && pc.Owned {
			pc.Depleted = pc.CurrentOil == 0
		}
		kept := pc.Rigs[:0]
		for _, r := range pc.Rigs {
			if _, ok := cfg.Rig(r.Tier); ok {
				kept = append(kept, r)
			}
		}
		if len(kept) != len(pc.Rigs) {
			clamp("rig_tier")
		}
		pc.Rigs = kept
		if !pc.Owned && len(pc.Rigs) > 0 {
			pc.Rigs = []model.Rig{}
			clamp("unowned_rigs")
		}
		if pc.Owned {
			pc.Analyzed = true
			if pc.LastDegradationCheck.IsZero() {
				pc.LastDegradationCheck = now
			}
		}
	}
	if st.NextParcelID <= maxID {
		st.NextParcelID = maxID + 1
		clamp("next_parcel_id")
	}
	// A game with no parcels has never had a usable generation, so its next
	// one is the free first generation.
	st.Generated = len(st.Parcels) > 0

	known := st.Companies[:0]
	for _, c := range st.Companies {
		if _, ok := cfg.Company(c.ID); ok {
			known = append(known, c)
		}
	}
	if len(known) != len(st.Companies) {
		clamp("company_unknown")
	}
	st.Companies = known
	for _, cc := range cfg.Market.Companies {
		c := st.Company(cc.ID)
		if c == nil {
			st.Companies = append(st.Companies, market.NewCompany(cc, rng))
			continue
		}
		if market.Clamp(c, cc) {
			clamp("company")
		}
	}

	if st.Allowance.Units < 0 || st.Allowance.Units > cfg.Land.RefreshMax {
		st.Allowance.Units = max(0, min(st.Allowance.Units, cfg.Land.RefreshMax))
		clamp("allowance")
	}
	if st.Allowance.Watermark.IsZero() || st.Allowance.Watermark.After(now) {
		st.Allowance.Watermark = now
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	if st.LastOnlineTime.IsZero() || st.LastOnlineTime.After(now) {
		st.LastOnlineTime = now
	}

	if len(kinds) > 0 {
		slog.Warn("state invariants repaired", "kinds", kinds)
	}
	return kinds
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
