package progression

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func newPlayer(balance int64) *model.Player {
	return &model.Player{
		Balance: decimal.NewFromInt(balance),
		Skills:  map[string]int{},
		Level:   1,
		Bonuses: map[string]model.Bonus{},
	}
}

func skill(id string) config.Skill {
	s, _ := config.Default().Skill(id)
	return s
}

func TestSkillCost_RepresentativeLevels(t *testing.T) {
	click := skill(config.SkillClickPower)
	analysis := skill(config.SkillAnalysis)

	tests := []struct {
		def   config.Skill
		level int
		want  int64
	}{
		{click, 0, 50},
		{click, 1, 75},
		{click, 5, 379},
		{click, 20, 166262},
		{analysis, 0, 100},
		{analysis, 1, 160},
		{analysis, 5, 1048},
	}
	for _, tt := range tests {
		got := SkillCost(tt.def, tt.level)
		if !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("%s L%d: expected %d, got %s", tt.def.ID, tt.level, tt.want, got)
		}
		exact := math.Floor(tt.def.BaseCost * math.Pow(tt.def.Multiplier, float64(tt.level)))
		if got.InexactFloat64() != exact {
			t.Errorf("%s L%d: cost %s differs from floor(base*mult^L)=%v", tt.def.ID, tt.level, got, exact)
		}
	}
}

func TestUpgrade(t *testing.T) {
	p := newPlayer(130)
	def := skill(config.SkillClickPower)

	level, cost, err := Upgrade(p, def)
	require.NoError(t, err)
	assert.Equal(t, 1, level)
	assert.True(t, cost.Equal(d(50)))
	assert.True(t, p.Balance.Equal(d(80)))

	level, cost, err = Upgrade(p, def)
	require.NoError(t, err)
	assert.Equal(t, 2, level)
	assert.True(t, cost.Equal(d(75)))
	assert.True(t, p.Balance.Equal(d(5)))

	_, _, err = Upgrade(p, def)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))
	assert.Equal(t, 2, p.Skills[def.ID], "failed upgrade must not change the level")
	assert.True(t, p.Balance.Equal(d(5)), "failed upgrade must not debit")
}

func TestUpgrade_MaxLevel(t *testing.T) {
	p := newPlayer(1_000_000)
	def := config.Skill{ID: "x", BaseCost: 1, Multiplier: 1, MaxLevel: 2}
	_, _, err := Upgrade(p, def)
	require.NoError(t, err)
	_, _, err = Upgrade(p, def)
	require.NoError(t, err)
	_, _, err = Upgrade(p, def)
	assert.ErrorIs(t, err, ErrMaxLevel)
}

func TestClickIncome_DerivedFromLevelAndBonuses(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	assert.True(t, ClickIncome(cfg, p).Equal(d(10)))

	p.Skills[config.SkillClickPower] = 4
	assert.True(t, ClickIncome(cfg, p).Equal(d(30)))

	Grant(p, config.Reward{Target: config.TargetClick, Op: "add", Value: 1})
	Grant(p, config.Reward{Target: config.TargetClick, Op: "mul", Value: 1.1})
	// (30 + 1) * 1.1 = 34.1
	assert.True(t, ClickIncome(cfg, p).Equal(d(34)))

	// recomputing from the same inputs is stable
	assert.True(t, ClickIncome(cfg, p).Equal(ClickIncome(cfg, p)))
}

func TestLandPrice(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	base := d(1000)

	assert.True(t, LandPrice(cfg, p, base).Equal(d(1000)))

	p.Skills[config.SkillNegotiation] = 5
	assert.True(t, LandPrice(cfg, p, base).Equal(d(900)))

	Grant(p, config.Reward{Target: config.TargetLandPrice, Op: "mul", Value: 0.95})
	assert.True(t, LandPrice(cfg, p, base).Equal(d(855)))

	p.Skills[config.SkillNegotiation] = 25
	p.Bonuses = nil
	assert.True(t, LandPrice(cfg, p, base).Equal(d(600)), "discount is capped")
}

func TestAnalysisCost(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	assert.True(t, AnalysisCost(cfg, p).Equal(d(100)))

	p.Skills[config.SkillAnalysis] = 3
	assert.True(t, AnalysisCost(cfg, p).Equal(d(85)))

	p.Skills[config.SkillAnalysis] = 20
	assert.True(t, AnalysisCost(cfg, p).Equal(d(25)))
}

func TestExtractionMultiplier(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	assert.True(t, ExtractionMultiplier(cfg, p).Equal(d(1)))

	p.Skills[config.SkillExtractionTech] = 3
	Grant(p, config.Reward{Target: config.TargetExtraction, Op: "mul", Value: 1.1})
	assert.True(t, ExtractionMultiplier(cfg, p).Equal(d(1.43)))
}

func TestIncome_AppliedAfterFloor(t *testing.T) {
	p := newPlayer(0)
	Grant(p, config.Reward{Target: config.TargetGlobalIncome, Op: "mul", Value: 1.05})
	assert.True(t, Income(p, d(101)).Equal(d(106)))
}

func TestGrantXP_Cascades(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)

	gained := GrantXP(cfg, p, 500)
	// 100 + 150 + 225 consumed, 25 carried
	assert.Equal(t, 3, gained)
	assert.Equal(t, 4, p.Level)
	assert.Equal(t, int64(25), p.XP)

	assert.Equal(t, 0, GrantXP(cfg, p, 0))
	assert.Equal(t, 0, GrantXP(cfg, p, -10))
}

func TestThreshold(t *testing.T) {
	cfg := config.Default().Progression
	assert.Equal(t, int64(100), Threshold(cfg, 1))
	assert.Equal(t, int64(150), Threshold(cfg, 2))
	assert.Equal(t, int64(337), Threshold(cfg, 4))
}

func TestEvaluate_UnlocksOnce(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	stats := model.Stats{TotalClicks: 1}

	unlocked := Evaluate(cfg, p, stats)
	require.Len(t, unlocked, 1)
	assert.Equal(t, "first_strike", unlocked[0].ID)
	assert.True(t, p.HasAchievement("first_strike"))
	assert.True(t, BonusFor(p, config.TargetClick).Add.Equal(d(1)))
	assert.Equal(t, 2, p.Level, "achievement XP levels the player")

	again := Evaluate(cfg, p, stats)
	assert.Empty(t, again)
	assert.True(t, BonusFor(p, config.TargetClick).Add.Equal(d(1)), "reward must not be applied twice")
}

func TestEvaluate_Multiple(t *testing.T) {
	cfg := config.Default().Progression
	p := newPlayer(0)
	stats := model.Stats{TotalClicks: 1000, ParcelsBought: 10, TotalEarned: d(2_000_000)}

	unlocked := Evaluate(cfg, p, stats)
	ids := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []string{"first_strike", "hard_worker", "landlord", "land_baron", "tycoon"}, ids)
	// 0.95 * 0.90
	assert.True(t, BonusFor(p, config.TargetLandPrice).Mul.Equal(d(0.855)))
}

func TestBonusFor_Identity(t *testing.T) {
	p := &model.Player{}
	b := BonusFor(p, config.TargetClick)
	assert.True(t, b.Mul.Equal(d(1)))
	assert.True(t, b.Add.IsZero())
	assert.True(t, Apply(d(7), model.Bonus{}).Equal(d(7)))
}
