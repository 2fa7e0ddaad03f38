// Package land generates parcels from weighted category tables and tracks the
// time-regenerating refresh allowance that gates regeneration.
package land

import (
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

// Pick selects a category by relative weight. draw is uniform in [0, 1) and
// is scaled onto the total weight, so weights need not sum to 1. The first
// category is returned if rounding leaves nothing selected.
func Pick(categories []config.Category, draw float64) config.Category {
	if len(categories) == 0 {
		return config.Category{}
	}
	var total float64
	for _, c := range categories {
		total += c.Weight
	}
	target := draw * total

	var cumulative float64
	for _, c := range categories {
		cumulative += c.Weight
		if cumulative > target {
			return c
		}
	}
	return categories[0]
}

// Generator produces parcels. Price and oil are rolled independently.
type Generator struct {
	cfg config.Land
	rng *rand.Rand
}

// NewGenerator creates a generator drawing from rng.
func NewGenerator(cfg config.Land, rng *rand.Rand) *Generator {
	return &Generator{cfg: cfg, rng: rng}
}

// Parcel rolls a single unowned parcel with the given id.
func (g *Generator) Parcel(id int64, now time.Time) model.Parcel {
	priceCat := Pick(g.cfg.PriceCategories, g.rng.Float64())
	oilCat := Pick(g.cfg.OilCategories, g.rng.Float64())

	oil := g.between(oilCat.Min, oilCat.Max)
	return model.Parcel{
		ID:                   id,
		PriceCategory:        priceCat.Name,
		OilCategory:          oilCat.Name,
		BasePrice:            decimal.NewFromInt(g.between(priceCat.Min, priceCat.Max)),
		TotalOil:             oil,
		CurrentOil:           oil,
		Rigs:                 []model.Rig{},
		LastDegradationCheck: now,
	}
}

// Batch discards every unowned parcel in st and appends count fresh ones.
// Owned parcels are kept unchanged and do not count against count. New ids
// continue from st.NextParcelID so they never alias an earlier parcel.
func (g *Generator) Batch(st *model.State, count int, now time.Time) []model.Parcel {
	kept := st.Parcels[:0]
	for _, p := range st.Parcels {
		if p.Owned {
			kept = append(kept, p)
		}
		if p.ID >= st.NextParcelID {
			st.NextParcelID = p.ID + 1
		}
	}
	if st.NextParcelID < 1 {
		st.NextParcelID = 1
	}

	fresh := make([]model.Parcel, 0, count)
	for i := 0; i < count; i++ {
		p := g.Parcel(st.NextParcelID, now)
		st.NextParcelID++
		fresh = append(fresh, p)
	}
	st.Parcels = append(kept, fresh...)
	return fresh
}

func (g *Generator) between(lo, hi int64) int64 {
	if hi <= lo {
		return lo
	}
	return lo + g.rng.Int64N(hi-lo+1)
}
