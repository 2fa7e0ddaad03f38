// Package game is the simulation context: it owns one player's state and
// applies commands and scheduled ticks to it.
//
// The Engine is the single entry point for mutation. Commands and scheduler
// ticks are serialized by a mutex and each runs to completion before any
// other observes the state. Subscribers and the autosave hook run outside
// the lock on copies of the state.
package game

import (
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/clock"
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/extraction"
	"github.com/oilbaron/sim-engine/internal/land"
	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/progression"
	"github.com/oilbaron/sim-engine/internal/scheduler"
)

// Scheduler task names.
const (
	TaskExtraction   = "extraction"
	TaskCooldown     = "cooldown"
	TaskPriceDrift   = "price-drift"
	TaskRequirements = "requirements"
	TaskDegradation  = "degradation"
	TaskAllowance    = "allowance"
	TaskAutosave     = "autosave"
)

// Engine runs one game.
type Engine struct {
	mu    sync.Mutex
	cfg   *config.Config
	st    model.State
	rng   *rand.Rand
	clock clock.Clock
	gen   *land.Generator
	sched *scheduler.Scheduler

	playCarry time.Duration
	saveDue   bool
	subs      map[int]func(Snapshot)
	nextSub   int
	autosave  func(model.State)
}

// New wraps st in an engine. The state is normalized against cfg, and the
// scheduler starts from the state's last online time so the first Advance
// reconciles any offline gap.
func New(cfg *config.Config, st model.State, clk clock.Clock, rng *rand.Rand) *Engine {
	now := clk.Now()
	Normalize(cfg, &st, rng, now)

	e := &Engine{
		cfg:   cfg,
		st:    st,
		rng:   rng,
		clock: clk,
		gen:   land.NewGenerator(cfg.Land, rng),
		sched: scheduler.New(0),
		subs:  make(map[int]func(Snapshot)),
	}
	e.every(TaskExtraction, cfg.Extraction.TickInterval, e.tickExtraction)
	e.every(TaskCooldown, cfg.Timers.CooldownCheck, e.tickCooldowns)
	e.every(TaskPriceDrift, cfg.Market.PriceDriftInterval, e.tickDrift)
	e.every(TaskRequirements, cfg.Market.RequirementInterval, e.tickRequirements)
	e.every(TaskDegradation, cfg.Extraction.DegradationInterval, e.tickDegradation)
	e.every(TaskAllowance, cfg.Timers.AllowanceCheck, e.tickAllowance)
	e.every(TaskAutosave, cfg.Timers.Autosave, func(time.Time) { e.saveDue = true })
	e.sched.Start(e.st.LastOnlineTime)
	return e
}

func (e *Engine) every(name string, interval time.Duration, fn func(time.Time)) {
	e.sched.Every(name, interval, func(due time.Time) {
		metrics.TicksTotal.WithLabelValues(name).Inc()
		fn(due)
	})
}

// Config returns the balance tables the engine runs with.
func (e *Engine) Config() *config.Config { return e.cfg }

// State returns a deep copy of the current state.
func (e *Engine) State() model.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Clone()
}

// Subscribe registers fn to receive a snapshot after every mutation. The
// returned function removes the subscription.
func (e *Engine) Subscribe(fn func(Snapshot)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() {
		e.mu.Lock()
		delete(e.subs, id)
		e.mu.Unlock()
	}
}

// OnAutosave sets the hook invoked with a state copy whenever the autosave
// timer fires.
func (e *Engine) OnAutosave(fn func(model.State)) {
	e.mu.Lock()
	e.autosave = fn
	e.mu.Unlock()
}

// Advance moves the simulation to now. A gap longer than the offline
// threshold since the last advance is reconciled as offline time and the
// report is returned; otherwise due timers run and nil is returned.
func (e *Engine) Advance(now time.Time) *OfflineReport {
	e.mu.Lock()

	gap := now.Sub(e.st.LastOnlineTime)
	if gap <= 0 {
		e.mu.Unlock()
		return nil
	}

	var report *OfflineReport
	changed := true
	if gap > e.cfg.Extraction.OfflineThreshold {
		r := e.reconcile(now)
		report = &r
	} else {
		changed = e.sched.Advance(now) > 0
		e.addPlaytime(gap)
	}
	e.st.LastOnlineTime = now
	e.touchStreak(now)
	e.evaluate()

	var saveState *model.State
	if e.saveDue && e.autosave != nil {
		s := e.st.Clone()
		saveState = &s
	}
	e.saveDue = false
	hook := e.autosave

	var snap Snapshot
	subs := e.subscribers()
	if changed && len(subs) > 0 {
		snap = e.snapshot(now)
	}
	e.mu.Unlock()

	if saveState != nil {
		hook(*saveState)
	}
	if changed {
		publish(subs, snap)
	}
	return report
}

// Resume reconciles the time since the state was last online. It is
// intended to be called once after loading a save.
func (e *Engine) Resume() OfflineReport {
	if r := e.Advance(e.clock.Now()); r != nil {
		return *r
	}
	return OfflineReport{}
}

// Snapshot returns the read model for the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(e.clock.Now())
}

func (e *Engine) subscribers() []func(Snapshot) {
	out := make([]func(Snapshot), 0, len(e.subs))
	for _, fn := range e.subs {
		out = append(out, fn)
	}
	return out
}

func publish(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func (e *Engine) addPlaytime(d time.Duration) {
	e.playCarry += d
	secs := int64(e.playCarry / time.Second)
	e.st.Stats.PlaytimeSeconds += secs
	e.playCarry -= time.Duration(secs) * time.Second
}

// touchStreak counts consecutive UTC days with play.
func (e *Engine) touchStreak(now time.Time) {
	today := now.UTC().Format(dayLayout)
	s := &e.st.Stats
	if s.LastPlayDay == today {
		return
	}
	yesterday := now.UTC().AddDate(0, 0, -1).Format(dayLayout)
	if s.LastPlayDay == yesterday {
		s.StreakDays++
	} else {
		s.StreakDays = 1
	}
	s.LastPlayDay = today
}

func (e *Engine) evaluate() {
	for _, a := range progression.Evaluate(e.cfg.Progression, &e.st.Player, e.st.Stats) {
		slog.Info("achievement unlocked", "achievement", a.ID, "reward", a.Reward.Target)
	}
}

// --- Scheduled tasks ---

func (e *Engine) tickExtraction(time.Time) {
	var total extraction.Yield
	for i := range e.st.Parcels {
		p := &e.st.Parcels[i]
		if !p.Productive() {
			continue
		}
		y := extraction.Tick(p, e.cfg.Rigs)
		if y.Depleted {
			slog.Info("parcel depleted", "parcel", p.ID)
		}
		total = total.Add(y)
	}
	e.credit(total.Effective)
}

// credit adds effective oil scaled by the extraction multiplier to the
// inventory and returns the amount credited.
func (e *Engine) unitPrice() decimal.Decimal {
	return decimal.NewFromFloat(e.cfg.Extraction.UnitPrice)
}

func (e *Engine) credit(effective decimal.Decimal) decimal.Decimal {
	if !effective.IsPositive() {
		return decimal.Zero
	}
	oil := effective.Mul(progression.ExtractionMultiplier(e.cfg.Progression, &e.st.Player))
	e.st.Player.AvailableOil = e.st.Player.AvailableOil.Add(oil)
	e.st.Stats.TotalOilExtracted = e.st.Stats.TotalOilExtracted.Add(oil)
	metrics.OilExtracted.Add(oil.InexactFloat64())
	return oil
}

func (e *Engine) tickCooldowns(due time.Time) {
	for i := range e.st.Companies {
		c := &e.st.Companies[i]
		cc, ok := e.cfg.Company(c.ID)
		if !ok {
			continue
		}
		if market.Expire(c, cc, due, e.rng) {
			slog.Info("company cooldown ended", "company", c.ID, "demand", c.CurrentDemand)
		}
	}
}

func (e *Engine) tickDrift(time.Time) {
	for i := range e.st.Companies {
		c := &e.st.Companies[i]
		if cc, ok := e.cfg.Company(c.ID); ok {
			market.Drift(c, cc, e.cfg.Market.MaxPriceChange, e.rng)
		}
	}
}

func (e *Engine) tickRequirements(time.Time) {
	for i := range e.st.Companies {
		c := &e.st.Companies[i]
		if c.Status() != model.StatusActive {
			continue
		}
		if cc, ok := e.cfg.Company(c.ID); ok {
			market.RefreshRequirement(c, cc, e.rng)
		}
	}
}

func (e *Engine) tickDegradation(due time.Time) {
	for i := range e.st.Parcels {
		p := &e.st.Parcels[i]
		cat, _ := e.cfg.OilCategory(p.OilCategory)
		if lost := extraction.Degrade(p, cat.DailyDecay, due); lost > 0 {
			slog.Debug("parcel degraded", "parcel", p.ID, "lost", lost)
		}
	}
}

func (e *Engine) tickAllowance(due time.Time) {
	land.Regenerate(&e.st.Allowance, e.cfg.Land.RefreshMax, e.cfg.Land.RefreshInterval, due)
}
