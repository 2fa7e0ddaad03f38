package game

import (
	"errors"

	"github.com/oilbaron/sim-engine/internal/market"
	"github.com/oilbaron/sim-engine/internal/progression"
)

var (
	ErrNotFound          = errors.New("game: not found")
	ErrNotOwned          = errors.New("game: parcel not owned")
	ErrAlreadyOwned      = errors.New("game: parcel already owned")
	ErrAlreadyAnalyzed   = errors.New("game: parcel already analyzed")
	ErrCapacityExceeded  = errors.New("game: parcel has no free rig slot")
	ErrNoRefresh         = errors.New("game: no land refresh available")
	ErrNotDepleted       = errors.New("game: parcel still has oil")
	ErrDepleted          = errors.New("game: parcel is depleted")
	ErrInsufficientFunds = progression.ErrInsufficientFunds
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrNotFound, "not_found"},
	{ErrNotOwned, "not_owned"},
	{ErrAlreadyOwned, "already_owned"},
	{ErrAlreadyAnalyzed, "already_analyzed"},
	{ErrCapacityExceeded, "capacity_exceeded"},
	{ErrNoRefresh, "no_refresh_allowance"},
	{ErrNotDepleted, "not_depleted"},
	{ErrDepleted, "depleted"},
	{progression.ErrInsufficientFunds, "insufficient_funds"},
	{progression.ErrMaxLevel, "max_level"},
	{market.ErrMaxContract, "max_level"},
	{market.ErrInvalidAmount, "invalid_amount"},
	{market.ErrCooldown, "cooldown"},
	{market.ErrBelowMinBuy, "below_min_buy"},
	{market.ErrInsufficientOil, "insufficient_oil"},
	{market.ErrExceedsDemand, "exceeds_demand"},
}

// Reason maps a command error to a stable machine-readable code. Errors
// that are not command rejections map to "internal".
func Reason(err error) string {
	if err == nil {
		return "ok"
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
