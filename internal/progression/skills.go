// Package progression is the economy ledger's rule set: skill cost curves,
// derived rates, permanent bonuses, XP levels and achievements.
//
// Derived values are pure functions of (level, bonuses) and are recomputed
// at the point of use; nothing here caches an incremental delta.
package progression

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("progression: insufficient funds")
	ErrMaxLevel          = errors.New("progression: skill already at max level")
)

// SkillCost is floor(base * multiplier^level).
func SkillCost(def config.Skill, level int) decimal.Decimal {
	return decimal.NewFromFloat(math.Floor(def.BaseCost * math.Pow(def.Multiplier, float64(level))))
}

// Upgrade debits the cost of the next level and increments it. Nothing is
// changed on error.
func Upgrade(p *model.Player, def config.Skill) (int, decimal.Decimal, error) {
	level := p.Skills[def.ID]
	if def.MaxLevel > 0 && level >= def.MaxLevel {
		return level, decimal.Zero, ErrMaxLevel
	}
	cost := SkillCost(def, level)
	if p.Balance.LessThan(cost) {
		return level, cost, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, p.Balance)
	}
	p.Balance = p.Balance.Sub(cost)
	if p.Skills == nil {
		p.Skills = map[string]int{}
	}
	p.Skills[def.ID] = level + 1
	return level + 1, cost, nil
}

// ClickIncome is the currency earned by one manual work action.
func ClickIncome(cfg config.Progression, p *model.Player) decimal.Decimal {
	base := cfg.BaseClick + cfg.ClickPerLevel*int64(p.Skills[config.SkillClickPower])
	return Apply(decimal.NewFromInt(base), BonusFor(p, config.TargetClick)).Floor()
}

// ExtractionMultiplier scales effective oil from every rig.
func ExtractionMultiplier(cfg config.Progression, p *model.Player) decimal.Decimal {
	level := p.Skills[config.SkillExtractionTech]
	base := decimal.NewFromInt(1).Add(decimal.NewFromFloat(cfg.ExtractionStep).Mul(decimal.NewFromInt(int64(level))))
	return Apply(base, BonusFor(p, config.TargetExtraction))
}

// LandPrice is what the player pays for a parcel with basePrice right now.
// The parcel's base price itself is never changed.
func LandPrice(cfg config.Progression, p *model.Player, basePrice decimal.Decimal) decimal.Decimal {
	level := p.Skills[config.SkillNegotiation]
	discount := math.Min(cfg.NegotiationStep*float64(level), cfg.NegotiationMax)
	price := basePrice.Mul(decimal.NewFromFloat(1 - discount)).Floor()
	return Apply(price, BonusFor(p, config.TargetLandPrice)).Floor()
}

// AnalysisCost is the price of analysing one unowned parcel.
func AnalysisCost(cfg config.Progression, p *model.Player) decimal.Decimal {
	level := p.Skills[config.SkillAnalysis]
	factor := math.Max(1-cfg.AnalysisStep*float64(level), cfg.AnalysisFloor)
	cost := decimal.NewFromInt(cfg.AnalysisCost).Mul(decimal.NewFromFloat(factor)).Floor()
	return Apply(cost, BonusFor(p, config.TargetAnalysisCost)).Floor()
}

// Income applies the global income bonus to an already floored amount.
func Income(p *model.Player, amount decimal.Decimal) decimal.Decimal {
	return Apply(amount, BonusFor(p, config.TargetGlobalIncome)).Floor()
}
