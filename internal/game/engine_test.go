package game

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oilbaron/sim-engine/internal/clock"
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/model"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func assertDec(t *testing.T, want float64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, got.Equal(d(want)), append([]any{fmt.Sprintf("expected %v, got %s", want, got)}, msgAndArgs...)...)
}

func newEngine(t *testing.T, mutate func(*model.State)) (*Engine, *clock.Fake) {
	t.Helper()
	cfg := config.Default()
	rng := rand.New(rand.NewPCG(1, 2))
	st := NewState(cfg, rng, t0)
	if mutate != nil {
		mutate(&st)
	}
	clk := clock.NewFake(t0)
	return New(cfg, st, clk, rng), clk
}

// ownWithRig turns the first parcel into an owned poor parcel holding oil
// with one basic rig.
func ownWithRig(oil int64) func(*model.State) {
	return func(st *model.State) {
		p := &st.Parcels[0]
		p.Owned = true
		p.OilCategory = "poor"
		p.TotalOil = oil
		p.CurrentOil = oil
		p.Rigs = []model.Rig{{Tier: "basic", InstalledAt: t0}}
		p.PurchasedAt = t0
		p.LastDegradationCheck = t0
	}
}

func rich(st *model.State) { st.Player.Balance = d(1_000_000) }

func TestNewState(t *testing.T) {
	cfg := config.Default()
	st := NewState(cfg, rand.New(rand.NewPCG(7, 7)), t0)

	assertDec(t, 1000, st.Player.Balance)
	assert.Equal(t, 1, st.Player.Level)
	assert.True(t, st.Generated, "the first batch is generated for free")
	require.Len(t, st.Parcels, cfg.Land.BatchSize)
	for i, p := range st.Parcels {
		assert.Equal(t, int64(i+1), p.ID)
		assert.False(t, p.Owned)
		assert.Equal(t, p.TotalOil, p.CurrentOil)
	}
	assert.Equal(t, int64(7), st.NextParcelID)
	require.Len(t, st.Companies, 3)
	for _, c := range st.Companies {
		assert.LessOrEqual(t, c.CurrentMinBuy, c.CurrentDemand)
		assert.Equal(t, model.StatusActive, c.Status())
	}
	assert.Equal(t, cfg.Land.RefreshMax, st.Allowance.Units)
	assert.Equal(t, 0, st.Player.Skills[config.SkillNegotiation])
}

func TestWork(t *testing.T) {
	e, _ := newEngine(t, nil)

	income, err := e.Work()
	require.NoError(t, err)
	assertDec(t, 10, income)

	snap := e.Snapshot()
	assertDec(t, 1010, snap.Balance)
	assert.Contains(t, snap.Achievements, "first_strike")
	assert.Equal(t, 2, snap.Level, "click XP plus achievement XP crosses level 1")
	assert.Equal(t, int64(1), snap.XP)

	income, err = e.Work()
	require.NoError(t, err)
	assertDec(t, 11, income, "first_strike adds +1 click income")
	assert.Equal(t, int64(2), e.State().Stats.TotalClicks)
}

func TestBuyLand(t *testing.T) {
	e, _ := newEngine(t, rich)
	st := e.State()
	base1, base2 := st.Parcels[0].BasePrice, st.Parcels[1].BasePrice

	price, err := e.BuyLand(1)
	require.NoError(t, err)
	assert.True(t, price.Equal(base1))

	st = e.State()
	assert.True(t, st.Parcels[0].Owned)
	assert.True(t, st.Parcels[0].Analyzed)
	assert.True(t, st.Player.Balance.Equal(d(1_000_000).Sub(base1)))
	assert.Contains(t, st.Player.Achievements, "landlord")

	price, err = e.BuyLand(2)
	require.NoError(t, err)
	assert.True(t, price.Equal(base2.Mul(d(0.95)).Floor()), "landlord discount applies to later purchases")

	_, err = e.BuyLand(1)
	assert.ErrorIs(t, err, ErrAlreadyOwned)
	assert.Equal(t, "already_owned", Reason(err))

	_, err = e.BuyLand(999)
	assert.Equal(t, "not_found", Reason(err))
}

func TestBuyLand_InsufficientFundsLeavesStateUntouched(t *testing.T) {
	e, _ := newEngine(t, func(st *model.State) { st.Player.Balance = d(10) })
	before := e.State()

	_, err := e.BuyLand(1)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "insufficient_funds", Reason(err))

	after := e.State()
	assert.False(t, after.Parcels[0].Owned)
	assert.True(t, after.Player.Balance.Equal(before.Player.Balance))
	assert.Zero(t, after.Stats.ParcelsBought)
}

func TestInstallAndRemoveRig(t *testing.T) {
	e, _ := newEngine(t, func(st *model.State) {
		rich(st)
		ownWithRig(5000)(st)
		st.Parcels[0].Rigs = []model.Rig{}
	})

	err := e.InstallRig(2, "basic")
	assert.Equal(t, "not_owned", Reason(err))
	err = e.InstallRig(1, "steam")
	assert.Equal(t, "not_found", Reason(err))

	for _, tier := range []string{"basic", "advanced", "basic", "industrial"} {
		require.NoError(t, e.InstallRig(1, tier))
	}
	err = e.InstallRig(1, "basic")
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, "capacity_exceeded", Reason(err))

	st := e.State()
	assertDec(t, 1_000_000-200-1000-200-5000, st.Player.Balance)
	assert.Equal(t, int64(4), st.Stats.RigsInstalled)

	refund, err := e.RemoveRig(1, 1)
	require.NoError(t, err)
	assertDec(t, 500, refund, "half of the advanced rig price")

	st = e.State()
	tiers := []string{}
	for _, r := range st.Parcels[0].Rigs {
		tiers = append(tiers, r.Tier)
	}
	assert.Equal(t, []string{"basic", "basic", "industrial"}, tiers, "order of remaining rigs is preserved")

	_, err = e.RemoveRig(1, 3)
	assert.Equal(t, "not_found", Reason(err))
}

func TestInstallRig_DepletedParcel(t *testing.T) {
	e, _ := newEngine(t, func(st *model.State) {
		rich(st)
		ownWithRig(0)(st)
	})
	err := e.InstallRig(1, "basic")
	assert.Equal(t, "depleted", Reason(err))
}

func TestAdvance_ExtractionTick(t *testing.T) {
	e, clk := newEngine(t, ownWithRig(1000))

	e.Advance(clk.Advance(time.Second))
	st := e.State()
	assert.Equal(t, int64(995), st.Parcels[0].CurrentOil)
	assertDec(t, 2.5, st.Player.AvailableOil)

	for i := 0; i < 9; i++ {
		e.Advance(clk.Advance(time.Second))
	}
	st = e.State()
	assert.Equal(t, int64(950), st.Parcels[0].CurrentOil)
	assertDec(t, 25, st.Player.AvailableOil)
	assert.Equal(t, int64(10), st.Stats.PlaytimeSeconds)
}

func TestSnapshot_IncomeEstimate(t *testing.T) {
	e, _ := newEngine(t, ownWithRig(1000))
	snap := e.Snapshot()
	assertDec(t, 2.5, snap.ExtractionRate)
	assertDec(t, 25, snap.IncomePerSecond, "2.5 barrels/s at the reference price of 10")

	idle, _ := newEngine(t, nil)
	assert.True(t, idle.Snapshot().IncomePerSecond.IsZero())
}

func TestAdvance_DepletionIsFinal(t *testing.T) {
	e, clk := newEngine(t, ownWithRig(7))

	e.Advance(clk.Advance(time.Second))
	e.Advance(clk.Advance(time.Second))
	st := e.State()
	assert.Equal(t, int64(0), st.Parcels[0].CurrentOil)
	assert.True(t, st.Parcels[0].Depleted)
	assertDec(t, 3.5, st.Player.AvailableOil, "second tick only drains the 2 units left")

	e.Advance(clk.Advance(time.Second))
	assertDec(t, 3.5, e.State().Player.AvailableOil)
}

func withPetrox(demand, minBuy int64) func(*model.State) {
	return func(st *model.State) {
		c := &st.Companies[0]
		c.CurrentDemand = demand
		c.CurrentMinBuy = minBuy
		c.TierIndex = 0
		c.CurrentPrice = d(10)
		st.Player.AvailableOil = d(1000)
	}
}

func TestSellOil_CooldownCycle(t *testing.T) {
	e, clk := newEngine(t, withPetrox(100, 50))

	res, err := e.SellOil("petrox", 100)
	require.NoError(t, err)
	assertDec(t, 1000, res.Revenue)
	assertDec(t, 1000, res.Credited)
	assert.True(t, res.Cooldown)

	snap := e.Snapshot()
	assertDec(t, 2000, snap.Balance)
	assertDec(t, 900, snap.AvailableOil)
	assert.Equal(t, model.StatusCooldown, snap.Companies[0].Status)
	require.NotNil(t, snap.Companies[0].CooldownUntil)
	assert.True(t, snap.Companies[0].CooldownUntil.After(t0))
	assert.Equal(t, int64(300), snap.Companies[0].CooldownSeconds)

	_, err = e.SellOil("petrox", 50)
	assert.Equal(t, "cooldown", Reason(err))

	for i := 0; i < 10; i++ {
		e.Advance(clk.Advance(30 * time.Second))
	}
	c := e.State().Companies[0]
	assert.Equal(t, model.StatusActive, c.Status())
	assert.GreaterOrEqual(t, c.CurrentDemand, int64(500))
	assert.LessOrEqual(t, c.CurrentDemand, int64(2000))
	assert.LessOrEqual(t, c.CurrentMinBuy, c.CurrentDemand)
}

func TestSellOil_Rejections(t *testing.T) {
	e, _ := newEngine(t, withPetrox(400, 100))

	cases := []struct {
		company string
		amount  int64
		reason  string
	}{
		{"petrox", 0, "invalid_amount"},
		{"petrox", -5, "invalid_amount"},
		{"petrox", 99, "below_min_buy"},
		{"petrox", 1001, "insufficient_oil"},
		{"petrox", 401, "exceeds_demand"},
		{"shellco", 100, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.reason, func(t *testing.T) {
			_, err := e.SellOil(tc.company, tc.amount)
			assert.Equal(t, tc.reason, Reason(err))
		})
	}

	st := e.State()
	assertDec(t, 1000, st.Player.AvailableOil, "rejected sales change nothing")
	assert.Equal(t, int64(400), st.Companies[0].CurrentDemand)
}

func TestSellOil_CannotExceedRemainingDemand(t *testing.T) {
	e, _ := newEngine(t, func(st *model.State) {
		withPetrox(60, 50)(st)
		st.Player.AvailableOil = d(70)
	})
	_, err := e.SellOil("petrox", 65)
	assert.ErrorIs(t, err, market.ErrExceedsDemand)
}

func TestGenerateLands(t *testing.T) {
	e, clk := newEngine(t, func(st *model.State) {
		st.Parcels[0].Owned = true
		st.Parcels[0].LastDegradationCheck = t0
	})

	fresh, err := e.GenerateLands()
	require.NoError(t, err)
	require.Len(t, fresh, 6)
	assert.Equal(t, int64(7), fresh[0].ID)
	assert.Equal(t, int64(12), fresh[5].ID)

	st := e.State()
	require.Len(t, st.Parcels, 7)
	assert.Equal(t, int64(1), st.Parcels[0].ID, "owned parcel survives regeneration")
	assert.True(t, st.Parcels[0].Owned)

	_, err = e.GenerateLands()
	require.NoError(t, err)
	_, err = e.GenerateLands()
	require.NoError(t, err)
	_, err = e.GenerateLands()
	assert.ErrorIs(t, err, ErrNoRefresh)
	assert.Equal(t, "no_refresh_allowance", Reason(err))
	assert.Equal(t, int64(1800), e.Snapshot().Refresh.NextSeconds)

	report := e.Advance(clk.Advance(31 * time.Minute))
	require.NotNil(t, report)
	assert.Equal(t, 1, report.RefreshesGranted)

	fresh, err = e.GenerateLands()
	require.NoError(t, err)
	assert.Equal(t, int64(25), fresh[0].ID, "ids keep increasing across regenerations")
}

func TestDeleteDepletedParcel(t *testing.T) {
	e, _ := newEngine(t, ownWithRig(500))
	base := e.State().Parcels[0].BasePrice

	_, err := e.DeleteDepletedParcel(1)
	assert.Equal(t, "not_depleted", Reason(err))
	_, err = e.DeleteDepletedParcel(2)
	assert.Equal(t, "not_owned", Reason(err))

	e2, _ := newEngine(t, func(st *model.State) {
		rich(st)
		ownWithRig(0)(st)
	})
	fee, err := e2.DeleteDepletedParcel(1)
	require.NoError(t, err)
	assert.True(t, fee.Equal(base.Mul(d(0.10)).Floor()))

	st := e2.State()
	assert.Nil(t, st.Parcel(1))
	assert.True(t, st.Player.Balance.Equal(d(1_000_000).Sub(fee)))
}

func TestAnalyzeParcel(t *testing.T) {
	e, _ := newEngine(t, nil)

	snap := e.Snapshot()
	assert.Nil(t, snap.Parcels[0].TotalOil, "unanalyzed reserves are hidden")
	assert.Empty(t, snap.Parcels[0].OilCategory)
	assertDec(t, 100, snap.AnalysisCost)

	p, err := e.AnalyzeParcel(1)
	require.NoError(t, err)
	assert.True(t, p.Analyzed)

	snap = e.Snapshot()
	require.NotNil(t, snap.Parcels[0].TotalOil)
	assert.Equal(t, p.TotalOil, *snap.Parcels[0].TotalOil)
	assert.NotEmpty(t, snap.Parcels[0].OilCategory)
	assertDec(t, 900, snap.Balance)

	_, err = e.AnalyzeParcel(1)
	assert.Equal(t, "already_analyzed", Reason(err))
}

func TestUpgradeSkill(t *testing.T) {
	e, _ := newEngine(t, nil)

	level, err := e.UpgradeSkill(config.SkillClickPower)
	require.NoError(t, err)
	assert.Equal(t, 1, level)

	snap := e.Snapshot()
	assertDec(t, 950, snap.Balance)
	assertDec(t, 15, snap.ClickIncome)
	for _, s := range snap.Skills {
		if s.ID == config.SkillClickPower {
			assertDec(t, 75, s.NextCost)
			assertDec(t, 15, s.Current)
			assertDec(t, 20, s.Next)
		}
	}

	_, err = e.UpgradeSkill("alchemy")
	assert.Equal(t, "not_found", Reason(err))

	e2, _ := newEngine(t, func(st *model.State) { st.Player.Balance = d(10) })
	_, err = e2.UpgradeSkill(config.SkillExtractionTech)
	assert.Equal(t, "insufficient_funds", Reason(err))
}

func TestUpgradeContract(t *testing.T) {
	e, _ := newEngine(t, rich)

	for want := 1; want <= 3; want++ {
		level, err := e.UpgradeContract("petrox")
		require.NoError(t, err)
		assert.Equal(t, want, level)
	}
	assertDec(t, 1_000_000-5000-20000-100000, e.State().Player.Balance)

	_, err := e.UpgradeContract("petrox")
	assert.Equal(t, "max_level", Reason(err))
	assert.Nil(t, e.Snapshot().Companies[0].NextContractCost)
}

func TestResume_OfflineExtraction(t *testing.T) {
	e, clk := newEngine(t, ownWithRig(1_000_000))
	clk.Advance(time.Hour)

	r := e.Resume()
	assert.Equal(t, time.Hour, r.Elapsed)
	assert.False(t, r.Capped)
	assertDec(t, 7200, r.OilExtracted, "5/s * 3600s * 0.8 * (1 - 0.5)")
	assert.Zero(t, r.OilDegraded)
	assert.Contains(t, r.Summary, "1 hour")
	assert.Contains(t, r.Summary, "7,200")
	assertDec(t, 72000, r.Value, "7200 barrels at the reference price of 10")
	assert.Contains(t, r.Summary, "$72,000")

	st := e.State()
	assert.Equal(t, int64(1_000_000-14400), st.Parcels[0].CurrentOil)
	assertDec(t, 7200, st.Player.AvailableOil)
	assert.True(t, st.LastOnlineTime.Equal(clk.Now()))
}

func TestResume_CapAndDegradation(t *testing.T) {
	e, clk := newEngine(t, ownWithRig(1_000_000))
	clk.Advance(48 * time.Hour)

	r := e.Resume()
	assert.True(t, r.Capped)
	assert.Equal(t, 12*time.Hour, r.Simulated)
	assertDec(t, 86400, r.OilExtracted)
	assert.Positive(t, r.OilDegraded, "two full days of decay")
	assert.Contains(t, r.Summary, "limited to 12 hours")

	st := e.State()
	assert.True(t, st.Parcels[0].LastDegradationCheck.Equal(t0.Add(48*time.Hour)))
}

func TestResume_ClampedToReserve(t *testing.T) {
	e, clk := newEngine(t, ownWithRig(500))
	clk.Advance(time.Hour)

	r := e.Resume()
	assertDec(t, 250, r.OilExtracted)
	assert.Equal(t, []int64{1}, r.DepletedParcels)
	assert.Contains(t, r.Summary, "ran dry")
}

func TestResume_NoGap(t *testing.T) {
	e, clk := newEngine(t, nil)
	clk.Advance(10 * time.Second)
	r := e.Resume()
	assert.Zero(t, r.Elapsed)
	assert.Empty(t, r.Summary)
}

func TestAutosaveHook(t *testing.T) {
	e, clk := newEngine(t, nil)
	var saves []model.State
	e.OnAutosave(func(st model.State) { saves = append(saves, st) })

	for i := 0; i < 65; i++ {
		e.Advance(clk.Advance(time.Second))
	}
	require.Len(t, saves, 2)
	assert.True(t, saves[0].LastOnlineTime.Equal(t0.Add(30*time.Second)))
}

func TestSubscribe(t *testing.T) {
	e, clk := newEngine(t, nil)
	var got []Snapshot
	unsubscribe := e.Subscribe(func(s Snapshot) { got = append(got, s) })

	_, err := e.Work()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assertDec(t, 1010, got[0].Balance)

	_, err = e.BuyLand(999)
	require.Error(t, err)
	assert.Len(t, got, 1, "rejected commands publish nothing")

	e.Advance(clk.Advance(time.Second))
	assert.Len(t, got, 2)

	unsubscribe()
	_, _ = e.Work()
	assert.Len(t, got, 2)
}

func TestStreak(t *testing.T) {
	e, clk := newEngine(t, func(st *model.State) {
		st.Stats.LastPlayDay = "2026-02-28"
		st.Stats.StreakDays = 4
	})
	e.Advance(clk.Advance(time.Second))
	assert.Equal(t, 5, e.State().Stats.StreakDays)

	clk.Advance(72 * time.Hour)
	e.Resume()
	assert.Equal(t, 1, e.State().Stats.StreakDays, "a missed day resets the streak")
}

func TestNormalize(t *testing.T) {
	cfg := config.Default()
	rng := rand.New(rand.NewPCG(3, 4))
	st := NewState(cfg, rng, t0)

	st.Player.Balance = d(-5)
	st.Parcels[0].Owned = true
	st.Parcels[0].CurrentOil = st.Parcels[0].TotalOil + 10
	st.Parcels[0].Rigs = []model.Rig{{Tier: "steam"}, {Tier: "basic"}}
	st.Parcels[1].Rigs = []model.Rig{{Tier: "basic"}}
	st.Companies[0].CurrentMinBuy = st.Companies[0].CurrentDemand + 1
	st.Companies = st.Companies[:2]
	st.NextParcelID = 2

	kinds := Normalize(cfg, &st, rng, t0)
	for _, k := range []string{"balance", "reserve", "rig_tier", "unowned_rigs", "company", "next_parcel_id"} {
		assert.Contains(t, kinds, k)
	}

	assertDec(t, 0, st.Player.Balance)
	assert.Equal(t, st.Parcels[0].TotalOil, st.Parcels[0].CurrentOil)
	require.Len(t, st.Parcels[0].Rigs, 1)
	assert.Equal(t, "basic", st.Parcels[0].Rigs[0].Tier)
	assert.Empty(t, st.Parcels[1].Rigs)
	assert.Equal(t, int64(7), st.NextParcelID)
	require.Len(t, st.Companies, 3)
	assert.Equal(t, "refinco", st.Companies[2].ID)
	for _, c := range st.Companies {
		assert.LessOrEqual(t, c.CurrentMinBuy, c.CurrentDemand)
	}

	assert.Empty(t, Normalize(cfg, &st, rng, t0), "a repaired state needs no further repair")
}

func TestNormalize_EmptyMapGetsFreeGeneration(t *testing.T) {
	e, _ := newEngine(t, func(st *model.State) {
		st.Parcels = []model.Parcel{}
		st.Generated = true
	})
	assert.False(t, e.State().Generated)
	assert.True(t, e.Snapshot().Refresh.Free)

	fresh, err := e.GenerateLands()
	require.NoError(t, err)
	assert.Len(t, fresh, 6)
	st := e.State()
	assert.Equal(t, 3, st.Allowance.Units, "first generation is free")
	assert.True(t, st.Generated)

	_, err = e.GenerateLands()
	require.NoError(t, err)
	assert.Equal(t, 2, e.State().Allowance.Units)
}

func TestNormalize_RebuildsBonusesFromAchievements(t *testing.T) {
	cfg := config.Default()
	rng := rand.New(rand.NewPCG(3, 4))
	st := NewState(cfg, rng, t0)
	st.Player.Achievements = []string{"landlord", "landlord"}
	st.Player.Bonuses = nil

	kinds := Normalize(cfg, &st, rng, t0)
	assert.Contains(t, kinds, "bonuses_rebuilt")
	assert.Equal(t, []string{"landlord"}, st.Player.Achievements)
	assertDec(t, 0.95, st.Player.Bonuses[config.TargetLandPrice].Mul)
}

func TestReason(t *testing.T) {
	assert.Equal(t, "ok", Reason(nil))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
	assert.Equal(t, "insufficient_oil", Reason(fmt.Errorf("wrap: %w", market.ErrInsufficientOil)))
	assert.Equal(t, "max_level", Reason(market.ErrMaxContract))
}
