package land

import (
	"time"

	"github.com/oilbaron/sim-engine/internal/model"
)

// Regenerate grants one unit per elapsed interval since the watermark, up to
// capacity. The watermark advances by exactly units*interval so partial progress
// toward the next unit carries over. A full allowance pins the watermark to
// now. Returns the number of units granted.
func Regenerate(a *model.Allowance, capacity int, interval time.Duration, now time.Time) int {
	if a.Units >= capacity {
		a.Units = capacity
		a.Watermark = now
		return 0
	}
	if interval <= 0 || a.Watermark.IsZero() {
		a.Watermark = now
		return 0
	}
	elapsed := now.Sub(a.Watermark)
	if elapsed < interval {
		return 0
	}

	units := int(elapsed / interval)
	a.Watermark = a.Watermark.Add(time.Duration(units) * interval)
	if a.Units+units >= capacity {
		units = capacity - a.Units
		a.Units = capacity
		a.Watermark = now
		return units
	}
	a.Units += units
	return units
}

// Consume spends one unit. It reports false when nothing is left.
func Consume(a *model.Allowance, capacity int, now time.Time) bool {
	if a.Units <= 0 {
		return false
	}
	if a.Units >= capacity {
		// regeneration starts from the moment the allowance stops being full
		a.Watermark = now
	}
	a.Units--
	return true
}

// UntilNext returns the time until the next unit, or zero when full.
func UntilNext(a model.Allowance, capacity int, interval time.Duration, now time.Time) time.Duration {
	if a.Units >= capacity {
		return 0
	}
	left := interval - now.Sub(a.Watermark)
	if left < 0 {
		return 0
	}
	return left
}
