package progression

import (
	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

var one = decimal.NewFromInt(1)

// BonusFor returns the bonus stack for target. A missing stack is the
// identity bonus.
func BonusFor(p *model.Player, target string) model.Bonus {
	b := p.Bonuses[target]
	if b.Mul.IsZero() {
		b.Mul = one
	}
	return b
}

// Apply computes (base + Add) * Mul.
func Apply(base decimal.Decimal, b model.Bonus) decimal.Decimal {
	mul := b.Mul
	if mul.IsZero() {
		mul = one
	}
	return base.Add(b.Add).Mul(mul)
}

// Grant folds a reward into the player's permanent bonuses. Additive rewards
// sum and multiplicative rewards multiply.
func Grant(p *model.Player, r config.Reward) {
	if p.Bonuses == nil {
		p.Bonuses = map[string]model.Bonus{}
	}
	b := BonusFor(p, r.Target)
	switch r.Op {
	case "add":
		b.Add = b.Add.Add(decimal.NewFromFloat(r.Value))
	case "mul":
		b.Mul = b.Mul.Mul(decimal.NewFromFloat(r.Value))
	default:
		return
	}
	p.Bonuses[r.Target] = b
}
