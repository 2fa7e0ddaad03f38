// Package extraction implements per-tick reserve depletion by installed rigs,
// the rate-times-time offline batch, and passive daily degradation.
package extraction

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

// Day is the degradation window.
const Day = 24 * time.Hour

// maxDegradationDays bounds one catch-up pass.
const maxDegradationDays = 3650

// Yield is the result of extracting from one parcel. Effective is oil after
// waste and rig efficiency, before any global multiplier.
type Yield struct {
	Extracted int64           `json:"extracted"`
	Wasted    decimal.Decimal `json:"wasted"`
	Effective decimal.Decimal `json:"effective"`
	Depleted  bool            `json:"depleted"`
}

// Add accumulates another yield.
func (y Yield) Add(o Yield) Yield {
	return Yield{
		Extracted: y.Extracted + o.Extracted,
		Wasted:    y.Wasted.Add(o.Wasted),
		Effective: y.Effective.Add(o.Effective),
		Depleted:  y.Depleted || o.Depleted,
	}
}

// Value converts the effective yield to currency at unitPrice.
func (y Yield) Value(unitPrice decimal.Decimal) decimal.Decimal {
	return Value(y.Effective, unitPrice)
}

// Value prices an amount of oil at unitPrice. It is an estimate for
// reporting; sales settle at the buying company's own price.
func Value(oil, unitPrice decimal.Decimal) decimal.Decimal {
	return oil.Mul(unitPrice)
}

// Tick runs one extraction tick on p. Each rig takes min(rate, remaining)
// in installation order, so the parcel never gives up more than its
// pre-tick reserve. The tick that empties the reserve marks p depleted.
func Tick(p *model.Parcel, tiers []config.RigTier) Yield {
	if !p.Productive() {
		return Yield{}
	}
	return drain(p, tiers, func(t config.RigTier) int64 { return t.ExtractionRate })
}

// Offline extracts rate*time for seconds of simulated time in one batch.
// seconds must already be capped and scaled by the offline efficiency.
func Offline(p *model.Parcel, tiers []config.RigTier, seconds float64, tick time.Duration) Yield {
	if !p.Productive() || seconds <= 0 || tick <= 0 {
		return Yield{}
	}
	ticks := decimal.NewFromFloat(seconds).Div(decimal.NewFromFloat(tick.Seconds()))
	return drain(p, tiers, func(t config.RigTier) int64 {
		return decimal.NewFromInt(t.ExtractionRate).Mul(ticks).IntPart()
	})
}

func drain(p *model.Parcel, tiers []config.RigTier, amount func(config.RigTier) int64) Yield {
	var y Yield
	remaining := p.CurrentOil
	for _, rig := range p.Rigs {
		if remaining <= 0 {
			break
		}
		tier, ok := lookup(tiers, rig.Tier)
		if !ok {
			continue
		}
		extracted := min(amount(tier), remaining)
		if extracted <= 0 {
			continue
		}
		remaining -= extracted

		ex := decimal.NewFromInt(extracted)
		wasted := ex.Mul(decimal.NewFromFloat(tier.WasteRate))
		effective := ex.Sub(wasted).Mul(decimal.NewFromFloat(tier.Efficiency))

		y.Extracted += extracted
		y.Wasted = y.Wasted.Add(wasted)
		y.Effective = y.Effective.Add(effective)
	}

	p.CurrentOil = max(remaining, 0)
	if p.CurrentOil == 0 {
		p.Depleted = true
		y.Depleted = true
	}
	return y
}

// RatePerSecond is the parcel's nominal effective output per second,
// ignoring how much reserve is left.
func RatePerSecond(p *model.Parcel, tiers []config.RigTier, tick time.Duration) decimal.Decimal {
	if !p.Productive() || tick <= 0 {
		return decimal.Zero
	}
	perTick := decimal.Zero
	for _, rig := range p.Rigs {
		tier, ok := lookup(tiers, rig.Tier)
		if !ok {
			continue
		}
		rate := decimal.NewFromInt(tier.ExtractionRate)
		keep := decimal.NewFromFloat(1 - tier.WasteRate)
		perTick = perTick.Add(rate.Mul(keep).Mul(decimal.NewFromFloat(tier.Efficiency)))
	}
	return perTick.Div(decimal.NewFromFloat(tick.Seconds()))
}

// Degrade applies the daily decay for every full day elapsed since the
// parcel's watermark, compounding per day, and advances the watermark by
// whole days. Returns the oil lost.
func Degrade(p *model.Parcel, dailyDecay float64, now time.Time) int64 {
	if !p.Owned || p.LastDegradationCheck.IsZero() {
		return 0
	}
	days := int64(now.Sub(p.LastDegradationCheck) / Day)
	if days <= 0 {
		return 0
	}
	p.LastDegradationCheck = p.LastDegradationCheck.Add(time.Duration(days) * Day)
	if p.CurrentOil <= 0 || dailyDecay <= 0 {
		return 0
	}

	keep := decimal.NewFromFloat(1 - dailyDecay)
	before := p.CurrentOil
	cur := decimal.NewFromInt(p.CurrentOil)
	for i := int64(0); i < min(days, maxDegradationDays) && cur.IsPositive(); i++ {
		cur = cur.Mul(keep).Floor()
	}
	p.CurrentOil = cur.IntPart()
	if p.CurrentOil == 0 {
		p.Depleted = true
	}
	return before - p.CurrentOil
}

func lookup(tiers []config.RigTier, id string) (config.RigTier, bool) {
	for _, t := range tiers {
		if t.ID == id {
			return t, true
		}
	}
	return config.RigTier{}, false
}
