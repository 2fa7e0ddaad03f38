package game

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/land"
	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/progression"
)

// exec runs one command under the engine lock. fn must validate before it
// mutates: a returned error means the state is untouched. Successful
// commands are followed by achievement evaluation and a snapshot publish.
func (e *Engine) exec(name string, fn func(now time.Time) error) error {
	start := time.Now()
	e.mu.Lock()
	now := e.clock.Now()
	err := fn(now)
	if err == nil {
		e.evaluate()
	}
	var snap Snapshot
	subs := e.subscribers()
	if err == nil && len(subs) > 0 {
		snap = e.snapshot(now)
	}
	e.mu.Unlock()

	metrics.CommandsTotal.WithLabelValues(name, Reason(err)).Inc()
	metrics.CommandLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err == nil {
		publish(subs, snap)
	}
	return err
}

func (e *Engine) grantXP(source string) {
	if gained := progression.GrantXP(e.cfg.Progression, &e.st.Player, progression.XPFor(e.cfg.Progression, source)); gained > 0 {
		slog.Info("level up", "level", e.st.Player.Level)
	}
}

func (e *Engine) earn(amount decimal.Decimal) {
	e.st.Player.Balance = e.st.Player.Balance.Add(amount)
	e.st.Stats.TotalEarned = e.st.Stats.TotalEarned.Add(amount)
}

func (e *Engine) debit(cost decimal.Decimal) error {
	if e.st.Player.Balance.LessThan(cost) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost, e.st.Player.Balance)
	}
	e.st.Player.Balance = e.st.Player.Balance.Sub(cost)
	return nil
}

func (e *Engine) parcel(id int64) (*model.Parcel, error) {
	p := e.st.Parcel(id)
	if p == nil {
		return nil, fmt.Errorf("%w: parcel %d", ErrNotFound, id)
	}
	return p, nil
}

func (e *Engine) ownedParcel(id int64) (*model.Parcel, error) {
	p, err := e.parcel(id)
	if err != nil {
		return nil, err
	}
	if !p.Owned {
		return nil, fmt.Errorf("%w: parcel %d", ErrNotOwned, id)
	}
	return p, nil
}

func (e *Engine) company(id string) (*model.Company, config.Company, error) {
	cc, ok := e.cfg.Company(id)
	c := e.st.Company(id)
	if !ok || c == nil {
		return nil, config.Company{}, fmt.Errorf("%w: company %q", ErrNotFound, id)
	}
	return c, cc, nil
}

// Work credits one manual click.
func (e *Engine) Work() (decimal.Decimal, error) {
	var income decimal.Decimal
	err := e.exec("work", func(time.Time) error {
		p := &e.st.Player
		income = progression.Income(p, progression.ClickIncome(e.cfg.Progression, p))
		e.earn(income)
		e.st.Stats.TotalClicks++
		e.grantXP(config.XPClick)
		return nil
	})
	return income, err
}

// BuyLand purchases an unowned parcel at the discounted land price.
func (e *Engine) BuyLand(parcelID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := e.exec("buy_land", func(now time.Time) error {
		p, err := e.parcel(parcelID)
		if err != nil {
			return err
		}
		if p.Owned {
			return fmt.Errorf("%w: parcel %d", ErrAlreadyOwned, parcelID)
		}
		price = progression.LandPrice(e.cfg.Progression, &e.st.Player, p.BasePrice)
		if err := e.debit(price); err != nil {
			return err
		}
		p.Owned = true
		p.Analyzed = true
		p.PurchasedAt = now
		p.LastDegradationCheck = now
		e.st.Stats.ParcelsBought++
		e.grantXP(config.XPLandBuy)
		slog.Info("parcel bought", "parcel", p.ID, "price", price.String())
		return nil
	})
	return price, err
}

// InstallRig buys a rig of tierID and appends it to an owned parcel.
func (e *Engine) InstallRig(parcelID int64, tierID string) error {
	return e.exec("install_rig", func(now time.Time) error {
		p, err := e.ownedParcel(parcelID)
		if err != nil {
			return err
		}
		if p.Depleted || p.CurrentOil <= 0 {
			return fmt.Errorf("%w: parcel %d", ErrDepleted, parcelID)
		}
		tier, ok := e.cfg.Rig(tierID)
		if !ok {
			return fmt.Errorf("%w: rig tier %q", ErrNotFound, tierID)
		}
		if len(p.Rigs) >= e.cfg.Land.MaxRigsPerParcel {
			return fmt.Errorf("%w: %d/%d", ErrCapacityExceeded, len(p.Rigs), e.cfg.Land.MaxRigsPerParcel)
		}
		if err := e.debit(decimal.NewFromInt(tier.Price)); err != nil {
			return err
		}
		p.Rigs = append(p.Rigs, model.Rig{Tier: tier.ID, InstalledAt: now})
		e.st.Stats.RigsInstalled++
		e.grantXP(config.XPRigInstall)
		return nil
	})
}

// RemoveRig uninstalls the rig at index and refunds part of its price.
func (e *Engine) RemoveRig(parcelID int64, index int) (decimal.Decimal, error) {
	var refund decimal.Decimal
	err := e.exec("remove_rig", func(time.Time) error {
		p, err := e.ownedParcel(parcelID)
		if err != nil {
			return err
		}
		if index < 0 || index >= len(p.Rigs) {
			return fmt.Errorf("%w: rig %d on parcel %d", ErrNotFound, index, parcelID)
		}
		refund = decimal.Zero
		if tier, ok := e.cfg.Rig(p.Rigs[index].Tier); ok {
			refund = decimal.NewFromInt(tier.Price).Mul(decimal.NewFromFloat(e.cfg.Land.RigRefund)).Floor()
		}
		p.Rigs = append(p.Rigs[:index], p.Rigs[index+1:]...)
		e.st.Player.Balance = e.st.Player.Balance.Add(refund)
		return nil
	})
	return refund, err
}

// UpgradeSkill pays for the next level of skillID.
func (e *Engine) UpgradeSkill(skillID string) (int, error) {
	var level int
	err := e.exec("upgrade_skill", func(time.Time) error {
		def, ok := e.cfg.Skill(skillID)
		if !ok {
			return fmt.Errorf("%w: skill %q", ErrNotFound, skillID)
		}
		var err error
		level, _, err = progression.Upgrade(&e.st.Player, def)
		return err
	})
	return level, err
}

// SaleResult is a completed sale. Revenue includes income bonuses.
type SaleResult struct {
	market.Sale
	Credited decimal.Decimal `json:"credited"`
}

// SellOil sells amount units of inventory to companyID.
func (e *Engine) SellOil(companyID string, amount int64) (SaleResult, error) {
	var res SaleResult
	err := e.exec("sell_oil", func(now time.Time) error {
		c, cc, err := e.company(companyID)
		if err != nil {
			return err
		}
		market.Expire(c, cc, now, e.rng)

		sale, err := market.Sell(c, cc, amount, e.st.Player.AvailableOil, now, e.cfg.Market.Cooldown)
		if err != nil {
			return err
		}
		credited := progression.Income(&e.st.Player, sale.Revenue)
		e.st.Player.AvailableOil = e.st.Player.AvailableOil.Sub(decimal.NewFromInt(amount))
		e.earn(credited)
		e.st.Stats.TotalOilSold += amount
		e.grantXP(config.XPOilSale)

		metrics.OilSold.WithLabelValues(c.ID).Add(float64(amount))
		metrics.Revenue.Add(credited.InexactFloat64())
		if sale.Cooldown {
			slog.Info("company demand exhausted", "company", c.ID, "until", c.CooldownUntil)
		}
		res = SaleResult{Sale: sale, Credited: credited}
		return nil
	})
	return res, err
}

// GenerateLands replaces every unowned parcel with a fresh batch. The first
// generation of a game is free; later ones consume a refresh.
func (e *Engine) GenerateLands() ([]model.Parcel, error) {
	var fresh []model.Parcel
	err := e.exec("generate_lands", func(now time.Time) error {
		if e.st.Generated {
			a := &e.st.Allowance
			land.Regenerate(a, e.cfg.Land.RefreshMax, e.cfg.Land.RefreshInterval, now)
			if !land.Consume(a, e.cfg.Land.RefreshMax, now) {
				wait := land.UntilNext(*a, e.cfg.Land.RefreshMax, e.cfg.Land.RefreshInterval, now)
				return fmt.Errorf("%w: next in %s", ErrNoRefresh, wait.Round(time.Second))
			}
		}
		fresh = append([]model.Parcel(nil), e.gen.Batch(&e.st, e.cfg.Land.BatchSize, now)...)
		e.st.Generated = true
		return nil
	})
	return fresh, err
}

// DeleteDepletedParcel removes an owned, empty parcel for a fee.
func (e *Engine) DeleteDepletedParcel(parcelID int64) (decimal.Decimal, error) {
	var fee decimal.Decimal
	err := e.exec("delete_parcel", func(time.Time) error {
		p, err := e.ownedParcel(parcelID)
		if err != nil {
			return err
		}
		if p.CurrentOil > 0 {
			return fmt.Errorf("%w: %d left", ErrNotDepleted, p.CurrentOil)
		}
		fee = p.BasePrice.Mul(decimal.NewFromFloat(e.cfg.Land.DeletionFee)).Floor()
		if err := e.debit(fee); err != nil {
			return err
		}
		e.st.RemoveParcel(parcelID)
		return nil
	})
	return fee, err
}

// AnalyzeParcel pays to reveal the oil category and reserve of an unowned
// parcel.
func (e *Engine) AnalyzeParcel(parcelID int64) (model.Parcel, error) {
	var out model.Parcel
	err := e.exec("analyze_parcel", func(time.Time) error {
		p, err := e.parcel(parcelID)
		if err != nil {
			return err
		}
		if p.Owned {
			return fmt.Errorf("%w: parcel %d", ErrAlreadyOwned, parcelID)
		}
		if p.Analyzed {
			return fmt.Errorf("%w: parcel %d", ErrAlreadyAnalyzed, parcelID)
		}
		if err := e.debit(progression.AnalysisCost(e.cfg.Progression, &e.st.Player)); err != nil {
			return err
		}
		p.Analyzed = true
		e.st.Stats.Analyses++
		e.grantXP(config.XPAnalysis)
		out = *p
		out.Rigs = []model.Rig{}
		return nil
	})
	return out, err
}

// UpgradeContract buys the next contract tier with companyID.
func (e *Engine) UpgradeContract(companyID string) (int, error) {
	var level int
	err := e.exec("upgrade_contract", func(time.Time) error {
		c, cc, err := e.company(companyID)
		if err != nil {
			return err
		}
		cost, err := market.NextContract(c, cc)
		if err != nil {
			return err
		}
		if err := e.debit(cost); err != nil {
			return err
		}
		if err := market.UpgradeContract(c, cc); err != nil {
			return err
		}
		level = c.ContractLevel
		return nil
	})
	return level, err
}
