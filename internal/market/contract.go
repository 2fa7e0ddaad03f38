package market

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/model"
)

var ErrMaxContract = errors.New("market: contract already at the highest tier")

// NextContract returns the cost of the company's next contract tier.
func NextContract(c *model.Company, cfg config.Company) (decimal.Decimal, error) {
	next := c.ContractLevel + 1
	if next >= len(cfg.Contracts) {
		return decimal.Zero, ErrMaxContract
	}
	return decimal.NewFromInt(cfg.Contracts[next].Cost), nil
}

// UpgradeContract raises the contract tier. The larger ceiling applies from
// the next demand redraw; the current pool is left alone.
func UpgradeContract(c *model.Company, cfg config.Company) error {
	if c.ContractLevel+1 >= len(cfg.Contracts) {
		return ErrMaxContract
	}
	c.ContractLevel++
	return nil
}

func contract(cfg config.Company, level int) config.ContractTier {
	if len(cfg.Contracts) == 0 {
		return config.ContractTier{DemandMultiplier: 1}
	}
	level = max(0, min(level, len(cfg.Contracts)-1))
	return cfg.Contracts[level]
}
