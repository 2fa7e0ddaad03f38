// Package market implements the per-company price drift, demand pool,
// purchase cooldown and minimum-purchase tiers that oil is sold into.
//
// A company is ACTIVE while it accepts sales and enters COOLDOWN the moment a
// sale exhausts its demand. The cooldown ends on the first Expire call at or
// after CooldownUntil, which redraws demand within the contract ceiling.
// Every transition re-establishes CurrentMinBuy <= CurrentDemand.
package market

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

var (
	ErrInvalidAmount   = errors.New("market: amount must be positive")
	ErrCooldown        = errors.New("market: company is in cooldown")
	ErrBelowMinBuy     = errors.New("market: amount below minimum purchase")
	ErrInsufficientOil = errors.New("market: not enough oil in inventory")
	ErrExceedsDemand   = errors.New("market: amount exceeds current demand")

	// MinPrice is the floor applied by price drift.
	MinPrice = decimal.NewFromInt(1)

	// PriceScale is the number of decimal places kept on drifted prices.
	PriceScale int32 = 2
)

// Sale is the outcome of a successful sell.
type Sale struct {
	Amount   int64           `json:"amount"`
	Price    decimal.Decimal `json:"price"`
	Revenue  decimal.Decimal `json:"revenue"` // floor(amount*price), before income bonuses
	Cooldown bool            `json:"cooldown"`
}

// NewCompany builds the initial ACTIVE state for cfg.
func NewCompany(cfg config.Company, rng *rand.Rand) model.Company {
	c := model.Company{ID: cfg.ID}
	c.CurrentDemand = drawDemand(cfg, c.ContractLevel, rng)
	RefreshRequirement(&c, cfg, rng)
	c.CurrentPrice = adjustedBase(cfg, c.TierIndex).Round(PriceScale)
	return c
}

// EffectiveMinBuy is the lesser of the configured minimum and remaining demand.
func EffectiveMinBuy(c *model.Company) int64 {
	return min(c.CurrentMinBuy, c.CurrentDemand)
}

// DemandCeiling is maxDemand scaled by the company's contract tier.
func DemandCeiling(cfg config.Company, contractLevel int) int64 {
	mult := decimal.NewFromFloat(contract(cfg, contractLevel).DemandMultiplier)
	return decimal.NewFromInt(cfg.MaxDemand).Mul(mult).IntPart()
}

// Sell validates and applies a sale of amount units against inventory.
// Nothing is mutated when an error is returned.
func Sell(c *model.Company, cfg config.Company, amount int64, inventory decimal.Decimal, now time.Time, cooldown time.Duration) (Sale, error) {
	if amount <= 0 {
		return Sale{}, ErrInvalidAmount
	}
	if c.CooldownUntil != nil {
		return Sale{}, fmt.Errorf("%w until %s", ErrCooldown, c.CooldownUntil.Format(time.RFC3339))
	}
	if minBuy := EffectiveMinBuy(c); amount < minBuy {
		return Sale{}, fmt.Errorf("%w: %d < %d", ErrBelowMinBuy, amount, minBuy)
	}
	if inventory.LessThan(decimal.NewFromInt(amount)) {
		return Sale{}, fmt.Errorf("%w: have %s", ErrInsufficientOil, inventory.StringFixed(2))
	}
	if amount > c.CurrentDemand {
		return Sale{}, fmt.Errorf("%w: %d > %d", ErrExceedsDemand, amount, c.CurrentDemand)
	}

	sale := Sale{
		Amount:  amount,
		Price:   c.CurrentPrice,
		Revenue: decimal.NewFromInt(amount).Mul(c.CurrentPrice).Floor(),
	}

	c.CurrentDemand -= amount
	if c.CurrentDemand <= 0 {
		c.CurrentDemand = 0
		c.CurrentMinBuy = 0
		until := now.Add(cooldown)
		c.CooldownUntil = &until
		sale.Cooldown = true
		return sale, nil
	}
	Clamp(c, cfg)
	return sale, nil
}

// Expire ends a cooldown whose deadline has passed: demand is redrawn
// within [minDemand, ceiling] and the purchase requirement re-clamped.
// It reports whether the company transitioned.
func Expire(c *model.Company, cfg config.Company, now time.Time, rng *rand.Rand) bool {
	if c.CooldownUntil == nil || now.Before(*c.CooldownUntil) {
		return false
	}
	c.CooldownUntil = nil
	c.CurrentDemand = drawDemand(cfg, c.ContractLevel, rng)
	c.CurrentMinBuy = tierAmount(cfg, c.TierIndex)
	Clamp(c, cfg)
	return true
}

// Drift moves an active company's price by a uniform random percentage in
// [-maxChange, +maxChange] around its tier-adjusted base price. Prices are
// frozen during cooldown.
func Drift(c *model.Company, cfg config.Company, maxChange float64, rng *rand.Rand) {
	if c.CooldownUntil != nil {
		return
	}
	change := (rng.Float64()*2 - 1) * maxChange
	price := adjustedBase(cfg, c.TierIndex).Mul(decimal.NewFromFloat(1 + change)).Round(PriceScale)
	if price.LessThan(MinPrice) {
		price = MinPrice
	}
	c.CurrentPrice = price
}

// RefreshRequirement re-rolls the minimum purchase uniformly among the
// tiers that fit within the current demand.
func RefreshRequirement(c *model.Company, cfg config.Company, rng *rand.Rand) {
	var valid []int
	for i, t := range cfg.Tiers {
		if t.Amount <= c.CurrentDemand {
			valid = append(valid, i)
		}
	}
	if len(valid) == 0 {
		c.TierIndex = 0
		c.CurrentMinBuy = c.CurrentDemand
		return
	}
	c.TierIndex = valid[rng.IntN(len(valid))]
	c.CurrentMinBuy = cfg.Tiers[c.TierIndex].Amount
}

// Clamp restores the company invariants. When CurrentMinBuy exceeds demand
// it drops to the largest configured tier that fits, or to the demand itself
// when no tier fits. Reports whether anything changed.
func Clamp(c *model.Company, cfg config.Company) bool {
	changed := false
	if c.CurrentDemand < 0 {
		c.CurrentDemand = 0
		changed = true
	}
	if c.TierIndex < 0 || c.TierIndex >= len(cfg.Tiers) {
		c.TierIndex = 0
		changed = true
	}
	if c.ContractLevel < 0 || c.ContractLevel >= len(cfg.Contracts) {
		c.ContractLevel = max(0, min(c.ContractLevel, len(cfg.Contracts)-1))
		changed = true
	}
	if c.CurrentPrice.LessThan(MinPrice) {
		c.CurrentPrice = MinPrice
		changed = true
	}
	if c.CurrentMinBuy < 0 {
		c.CurrentMinBuy = 0
		changed = true
	}
	if c.CurrentMinBuy <= c.CurrentDemand {
		return changed
	}

	for i := len(cfg.Tiers) - 1; i >= 0; i-- {
		if cfg.Tiers[i].Amount <= c.CurrentDemand {
			c.TierIndex = i
			c.CurrentMinBuy = cfg.Tiers[i].Amount
			return true
		}
	}
	c.CurrentMinBuy = c.CurrentDemand
	return true
}

func drawDemand(cfg config.Company, contractLevel int, rng *rand.Rand) int64 {
	lo := cfg.MinDemand
	hi := max(DemandCeiling(cfg, contractLevel), lo)
	return lo + rng.Int64N(hi-lo+1)
}

func adjustedBase(cfg config.Company, tierIndex int) decimal.Decimal {
	mult := 1.0
	if tierIndex >= 0 && tierIndex < len(cfg.Tiers) {
		mult = cfg.Tiers[tierIndex].PriceMultiplier
	}
	return decimal.NewFromFloat(cfg.BasePrice).Mul(decimal.NewFromFloat(mult))
}

func tierAmount(cfg config.Company, tierIndex int) int64 {
	if tierIndex >= 0 && tierIndex < len(cfg.Tiers) {
		return cfg.Tiers[tierIndex].Amount
	}
	return 0
}
