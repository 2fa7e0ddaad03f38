package game

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/extraction"
	"github.com/oilbaron/sim-engine/internal/land"
	"github.com/oilbaron/sim-engine/internal/market"
)

// OfflineReport aggregates what happened while the game was not running.
type OfflineReport struct {
	Elapsed          time.Duration   `json:"elapsed"`
	Simulated        time.Duration   `json:"simulated"`
	Capped           bool            `json:"capped"`
	OilExtracted     decimal.Decimal `json:"oilExtracted"`
	Value            decimal.Decimal `json:"value"` // OilExtracted at the reference unit price
	OilDegraded      int64           `json:"oilDegraded"`
	DepletedParcels  []int64         `json:"depletedParcels"`
	CompaniesResumed int             `json:"companiesResumed"`
	RefreshesGranted int             `json:"refreshesGranted"`
	Summary          string          `json:"summary"`
}

// reconcile applies the offline gap ending at now in one bounded batch:
// extraction at rate*time over the capped and efficiency-scaled span,
// whole-day degradation, cooldown expiry and allowance regeneration.
func (e *Engine) reconcile(now time.Time) OfflineReport {
	x := e.cfg.Extraction
	r := OfflineReport{Elapsed: now.Sub(e.st.LastOnlineTime)}

	r.Simulated = r.Elapsed
	if x.OfflineCap > 0 && r.Simulated > x.OfflineCap {
		r.Simulated = x.OfflineCap
		r.Capped = true
	}
	seconds := r.Simulated.Seconds() * x.OfflineEfficiency

	var total extraction.Yield
	for i := range e.st.Parcels {
		p := &e.st.Parcels[i]
		if !p.Productive() {
			continue
		}
		y := extraction.Offline(p, e.cfg.Rigs, seconds, x.TickInterval)
		if y.Depleted {
			r.DepletedParcels = append(r.DepletedParcels, p.ID)
		}
		total = total.Add(y)
	}
	r.OilExtracted = e.credit(total.Effective)
	r.Value = extraction.Value(r.OilExtracted, e.unitPrice())

	for i := range e.st.Parcels {
		p := &e.st.Parcels[i]
		cat, _ := e.cfg.OilCategory(p.OilCategory)
		wasDepleted := p.Depleted
		r.OilDegraded += extraction.Degrade(p, cat.DailyDecay, now)
		if p.Depleted && !wasDepleted {
			r.DepletedParcels = append(r.DepletedParcels, p.ID)
		}
	}

	for i := range e.st.Companies {
		c := &e.st.Companies[i]
		if cc, ok := e.cfg.Company(c.ID); ok && market.Expire(c, cc, now, e.rng) {
			r.CompaniesResumed++
		}
	}

	r.RefreshesGranted = land.Regenerate(&e.st.Allowance, e.cfg.Land.RefreshMax, e.cfg.Land.RefreshInterval, now)

	e.sched.Start(now)
	r.Summary = r.summarize(now)
	slog.Info("offline progress applied",
		"elapsed", r.Elapsed.String(),
		"simulated", r.Simulated.String(),
		"oil", r.OilExtracted.StringFixed(2),
		"value", r.Value.StringFixed(2),
		"degraded", r.OilDegraded,
	)
	return r
}

func (r OfflineReport) summarize(now time.Time) string {
	away := strings.TrimSpace(humanize.RelTime(now.Add(-r.Elapsed), now, "", ""))
	var b strings.Builder
	fmt.Fprintf(&b, "While you were away for %s, your rigs extracted %s barrels of oil.",
		away, humanize.Commaf(r.OilExtracted.Round(1).InexactFloat64()))
	if r.Value.IsPositive() {
		fmt.Fprintf(&b, " That oil is worth about $%s at the reference price.",
			humanize.Commaf(r.Value.Round(0).InexactFloat64()))
	}
	if r.Capped {
		limit := strings.TrimSpace(humanize.RelTime(now.Add(-r.Simulated), now, "", ""))
		fmt.Fprintf(&b, " Offline progress is limited to %s.", limit)
	}
	if r.OilDegraded > 0 {
		fmt.Fprintf(&b, " Reserves settled by %s barrels.", humanize.Comma(r.OilDegraded))
	}
	if n := len(r.DepletedParcels); n > 0 {
		fmt.Fprintf(&b, " %d parcel(s) ran dry.", n)
	}
	return b.String()
}
