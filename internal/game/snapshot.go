package game

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/extraction"
	"github.com/oilbaron/sim-engine/internal/land"
	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/progression"
)

// Snapshot is the read model handed to UIs.
type Snapshot struct {
	Time                 time.Time              `json:"time"`
	Balance              decimal.Decimal        `json:"balance"`
	AvailableOil         decimal.Decimal        `json:"availableOil"`
	Level                int                    `json:"level"`
	XP                   int64                  `json:"xp"`
	NextLevelXP          int64                  `json:"nextLevelXp"`
	ClickIncome          decimal.Decimal        `json:"clickIncome"`
	ExtractionRate       decimal.Decimal        `json:"extractionRate"` // oil per second, all parcels
	ExtractionMultiplier decimal.Decimal        `json:"extractionMultiplier"`
	IncomePerSecond      decimal.Decimal        `json:"incomePerSecond"` // ExtractionRate at the reference unit price
	AnalysisCost         decimal.Decimal        `json:"analysisCost"`
	Parcels              []ParcelView           `json:"parcels"`
	Companies            []CompanyView          `json:"companies"`
	Skills               []SkillView            `json:"skills"`
	Bonuses              map[string]model.Bonus `json:"bonuses"`
	Achievements         []string               `json:"achievements"`
	Refresh              RefreshView            `json:"refresh"`
	Stats                model.Stats            `json:"stats"`
}

// ParcelView hides the oil details of unowned parcels that have not been
// analyzed.
type ParcelView struct {
	ID            int64           `json:"id"`
	PriceCategory string          `json:"priceCategory"`
	BasePrice     decimal.Decimal `json:"basePrice"`
	Price         decimal.Decimal `json:"price"` // what buying it costs now
	Owned         bool            `json:"owned"`
	Analyzed      bool            `json:"analyzed"`
	Depleted      bool            `json:"depleted"`
	OilCategory   string          `json:"oilCategory,omitempty"`
	TotalOil      *int64          `json:"totalOil,omitempty"`
	CurrentOil    *int64          `json:"currentOil,omitempty"`
	Rigs          []model.Rig     `json:"rigs"`
	FreeSlots     int             `json:"freeSlots"`
	RatePerSecond decimal.Decimal `json:"ratePerSecond"`
	DeletionFee   decimal.Decimal `json:"deletionFee"`
}

type CompanyView struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Status           string           `json:"status"`
	Price            decimal.Decimal  `json:"price"`
	Demand           int64            `json:"demand"`
	MinBuy           int64            `json:"minBuy"`
	ContractLevel    int              `json:"contractLevel"`
	NextContractCost *decimal.Decimal `json:"nextContractCost,omitempty"`
	DemandCeiling    int64            `json:"demandCeiling"`
	CooldownUntil    *time.Time       `json:"cooldownUntil,omitempty"`
	CooldownSeconds  int64            `json:"cooldownSeconds"`
}

// SkillView previews the derived value at the current and next level.
type SkillView struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Level    int             `json:"level"`
	MaxLevel int             `json:"maxLevel"`
	NextCost decimal.Decimal `json:"nextCost"`
	Current  decimal.Decimal `json:"current"`
	Next     decimal.Decimal `json:"next"`
}

type RefreshView struct {
	Units       int   `json:"units"`
	Max         int   `json:"max"`
	NextSeconds int64 `json:"nextSeconds"`
	Free        bool  `json:"free"`
}

func (e *Engine) snapshot(now time.Time) Snapshot {
	cfg := e.cfg
	p := &e.st.Player
	mult := progression.ExtractionMultiplier(cfg.Progression, p)

	s := Snapshot{
		Time:                 now,
		Balance:              p.Balance,
		AvailableOil:         p.AvailableOil,
		Level:                p.Level,
		XP:                   p.XP,
		NextLevelXP:          progression.Threshold(cfg.Progression, p.Level),
		ClickIncome:          progression.Income(p, progression.ClickIncome(cfg.Progression, p)),
		ExtractionRate:       decimal.Zero,
		ExtractionMultiplier: mult,
		AnalysisCost:         progression.AnalysisCost(cfg.Progression, p),
		Parcels:              make([]ParcelView, 0, len(e.st.Parcels)),
		Companies:            make([]CompanyView, 0, len(e.st.Companies)),
		Bonuses:              make(map[string]model.Bonus, len(p.Bonuses)),
		Achievements:         append([]string(nil), p.Achievements...),
		Stats:                e.st.Stats,
	}
	for k, v := range p.Bonuses {
		s.Bonuses[k] = v
	}

	for i := range e.st.Parcels {
		pc := &e.st.Parcels[i]
		v := ParcelView{
			ID:            pc.ID,
			PriceCategory: pc.PriceCategory,
			BasePrice:     pc.BasePrice,
			Price:         progression.LandPrice(cfg.Progression, p, pc.BasePrice),
			Owned:         pc.Owned,
			Analyzed:      pc.Analyzed,
			Depleted:      pc.Depleted,
			Rigs:          append([]model.Rig{}, pc.Rigs...),
			FreeSlots:     max(0, cfg.Land.MaxRigsPerParcel-len(pc.Rigs)),
			RatePerSecond: extraction.RatePerSecond(pc, cfg.Rigs, cfg.Extraction.TickInterval).Mul(mult),
			DeletionFee:   pc.BasePrice.Mul(decimal.NewFromFloat(cfg.Land.DeletionFee)).Floor(),
		}
		if pc.Owned || pc.Analyzed {
			total, cur := pc.TotalOil, pc.CurrentOil
			v.OilCategory = pc.OilCategory
			v.TotalOil = &total
			v.CurrentOil = &cur
		}
		s.ExtractionRate = s.ExtractionRate.Add(v.RatePerSecond)
		s.Parcels = append(s.Parcels, v)
	}
	s.IncomePerSecond = extraction.Value(s.ExtractionRate, e.unitPrice())

	for i := range e.st.Companies {
		c := &e.st.Companies[i]
		cc, _ := cfg.Company(c.ID)
		v := CompanyView{
			ID:            c.ID,
			Name:          cc.Name,
			Status:        c.Status(),
			Price:         c.CurrentPrice,
			Demand:        c.CurrentDemand,
			MinBuy:        market.EffectiveMinBuy(c),
			ContractLevel: c.ContractLevel,
			DemandCeiling: market.DemandCeiling(cc, c.ContractLevel),
		}
		if cost, err := market.NextContract(c, cc); err == nil {
			v.NextContractCost = &cost
		}
		if c.CooldownUntil != nil {
			until := *c.CooldownUntil
			v.CooldownUntil = &until
			v.CooldownSeconds = max(0, int64(until.Sub(now).Seconds()))
		}
		s.Companies = append(s.Companies, v)
	}

	for _, def := range cfg.Progression.Skills {
		level := p.Skills[def.ID]
		v := SkillView{
			ID:       def.ID,
			Name:     def.Name,
			Level:    level,
			MaxLevel: def.MaxLevel,
			NextCost: progression.SkillCost(def, level),
			Current:  skillValue(cfg, p, def.ID),
		}
		next := *p
		next.Skills = map[string]int{def.ID: level + 1}
		for k, l := range p.Skills {
			if k != def.ID {
				next.Skills[k] = l
			}
		}
		v.Next = skillValue(cfg, &next, def.ID)
		s.Skills = append(s.Skills, v)
	}

	a := e.st.Allowance
	s.Refresh = RefreshView{
		Units:       a.Units,
		Max:         cfg.Land.RefreshMax,
		NextSeconds: int64(land.UntilNext(a, cfg.Land.RefreshMax, cfg.Land.RefreshInterval, now).Seconds()),
		Free:        !e.st.Generated,
	}
	return s
}

// skillValue is the derived value a skill drives.
func skillValue(cfg *config.Config, p *model.Player, skillID string) decimal.Decimal {
	switch skillID {
	case config.SkillClickPower:
		return progression.ClickIncome(cfg.Progression, p)
	case config.SkillAnalysis:
		return progression.AnalysisCost(cfg.Progression, p)
	case config.SkillExtractionTech:
		return progression.ExtractionMultiplier(cfg.Progression, p)
	case config.SkillNegotiation:
		return progression.LandPrice(cfg.Progression, p, decimal.NewFromInt(1000))
	}
	return decimal.Zero
}
