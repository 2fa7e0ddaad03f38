// Package config holds the balance tables that drive the simulation and the
// host process settings. Balance defaults live in Default; a YAML file can
// override any subset of them via Load.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("config: invalid balance configuration")
)

// Category is one weighted tier used by the land generator. For oil
// categories DailyDecay is the fraction of the current reserve lost per day.
type Category struct {
	Name       string  `yaml:"name" json:"name"`
	Weight     float64 `yaml:"weight" json:"weight"`
	Min        int64   `yaml:"min" json:"min"`
	Max        int64   `yaml:"max" json:"max"`
	DailyDecay float64 `yaml:"daily_decay,omitempty" json:"daily_decay,omitempty"`
}

// RigTier is static rig configuration. Installed rigs reference it by ID.
type RigTier struct {
	ID             string  `yaml:"id" json:"id"`
	Name           string  `yaml:"name" json:"name"`
	Price          int64   `yaml:"price" json:"price"`
	ExtractionRate int64   `yaml:"extraction_rate" json:"extraction_rate"` // oil units per tick
	WasteRate      float64 `yaml:"waste_rate" json:"waste_rate"`
	Efficiency     float64 `yaml:"efficiency" json:"efficiency"`
}

// Skill is an upgradeable skill with cost(level) = floor(BaseCost * Multiplier^level).
type Skill struct {
	ID         string  `yaml:"id" json:"id"`
	Name       string  `yaml:"name" json:"name"`
	BaseCost   float64 `yaml:"base_cost" json:"base_cost"`
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	MaxLevel   int     `yaml:"max_level" json:"max_level"`
}

// BuyTier is a discrete minimum-purchase requirement and the price
// multiplier a company pays while it is active.
type BuyTier struct {
	Amount          int64   `yaml:"amount" json:"amount"`
	PriceMultiplier float64 `yaml:"price_multiplier" json:"price_multiplier"`
}

// ContractTier raises a company's demand ceiling. Tier 0 is the default.
type ContractTier struct {
	DemandMultiplier float64 `yaml:"demand_multiplier" json:"demand_multiplier"`
	Cost             int64   `yaml:"cost" json:"cost"`
}

// Company is the static configuration of one market counterparty.
type Company struct {
	ID        string         `yaml:"id" json:"id"`
	Name      string         `yaml:"name" json:"name"`
	BasePrice float64        `yaml:"base_price" json:"base_price"`
	MinDemand int64          `yaml:"min_demand" json:"min_demand"`
	MaxDemand int64          `yaml:"max_demand" json:"max_demand"`
	Tiers     []BuyTier      `yaml:"tiers" json:"tiers"`
	Contracts []ContractTier `yaml:"contracts" json:"contracts"`
}

// Reward is a permanent bonus granted once by an achievement.
type Reward struct {
	Target string  `yaml:"target" json:"target"` // click, land_price, extraction, global_income, analysis_cost
	Op     string  `yaml:"op" json:"op"`         // add or mul
	Value  float64 `yaml:"value" json:"value"`
}

// Achievement unlocks when Metric reaches Threshold.
type Achievement struct {
	ID        string  `yaml:"id" json:"id"`
	Name      string  `yaml:"name" json:"name"`
	Metric    string  `yaml:"metric" json:"metric"`
	Threshold float64 `yaml:"threshold" json:"threshold"`
	Reward    Reward  `yaml:"reward" json:"reward"`
}

type Land struct {
	BatchSize        int           `yaml:"batch_size"`
	PriceCategories  []Category    `yaml:"price_categories"`
	OilCategories    []Category    `yaml:"oil_categories"`
	MaxRigsPerParcel int           `yaml:"max_rigs_per_parcel"`
	DeletionFee      float64       `yaml:"deletion_fee"` // fraction of base price
	RigRefund        float64       `yaml:"rig_refund"`   // fraction of rig price
	RefreshMax       int           `yaml:"refresh_max"`
	RefreshInterval  time.Duration `yaml:"refresh_interval"`
}

type Market struct {
	Companies           []Company     `yaml:"companies"`
	PriceDriftInterval  time.Duration `yaml:"price_drift_interval"`
	RequirementInterval time.Duration `yaml:"requirement_interval"`
	Cooldown            time.Duration `yaml:"cooldown"`
	MaxPriceChange      float64       `yaml:"max_price_change"`
}

type Extraction struct {
	TickInterval        time.Duration `yaml:"tick_interval"`
	UnitPrice           float64       `yaml:"unit_price"` // reference price used to value yields
	DegradationInterval time.Duration `yaml:"degradation_interval"`
	OfflineThreshold    time.Duration `yaml:"offline_threshold"`
	OfflineCap          time.Duration `yaml:"offline_cap"`
	OfflineEfficiency   float64       `yaml:"offline_efficiency"`
}

type Progression struct {
	StartingBalance int64   `yaml:"starting_balance"`
	BaseClick       int64   `yaml:"base_click"`
	ClickPerLevel   int64   `yaml:"click_per_level"`
	AnalysisCost    int64   `yaml:"analysis_cost"`
	AnalysisStep    float64 `yaml:"analysis_step"`  // discount per analysis level
	AnalysisFloor   float64 `yaml:"analysis_floor"` // lowest cost factor
	ExtractionStep  float64 `yaml:"extraction_step"`
	NegotiationStep float64 `yaml:"negotiation_step"`
	NegotiationMax  float64 `yaml:"negotiation_max"`

	// LevelBase * LevelGrowth^(L-1) XP is needed to leave level L.
	LevelBase   float64          `yaml:"level_base"`
	LevelGrowth float64          `yaml:"level_growth"`
	XP          map[string]int64 `yaml:"xp"`

	Skills       []Skill       `yaml:"skills"`
	Achievements []Achievement `yaml:"achievements"`
}

// Timers are the scheduler intervals not owned by a specific subsystem.
type Timers struct {
	Autosave       time.Duration `yaml:"autosave"`
	CooldownCheck  time.Duration `yaml:"cooldown_check"`
	AllowanceCheck time.Duration `yaml:"allowance_check"`
}

// Config is the full balance table set.
type Config struct {
	Land        Land        `yaml:"land"`
	Rigs        []RigTier   `yaml:"rigs"`
	Market      Market      `yaml:"market"`
	Extraction  Extraction  `yaml:"extraction"`
	Progression Progression `yaml:"progression"`
	Timers      Timers      `yaml:"timers"`
}

// Load reads a YAML balance file over the defaults and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read balance file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse balance file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the tables for values the simulation cannot work with and
// sorts company buy tiers by amount.
func (c *Config) Validate() error {
	if c.Land.BatchSize <= 0 {
		return fmt.Errorf("%w: land.batch_size must be positive", ErrInvalidConfig)
	}
	for _, set := range [][]Category{c.Land.PriceCategories, c.Land.OilCategories} {
		if len(set) == 0 {
			return fmt.Errorf("%w: category table is empty", ErrInvalidConfig)
		}
		for _, cat := range set {
			if cat.Weight <= 0 || cat.Min < 0 || cat.Max < cat.Min {
				return fmt.Errorf("%w: category %q", ErrInvalidConfig, cat.Name)
			}
		}
	}
	if len(c.Rigs) == 0 {
		return fmt.Errorf("%w: no rig tiers", ErrInvalidConfig)
	}
	for _, r := range c.Rigs {
		if r.ExtractionRate <= 0 || r.WasteRate < 0 || r.WasteRate >= 1 || r.Efficiency <= 0 {
			return fmt.Errorf("%w: rig %q", ErrInvalidConfig, r.ID)
		}
	}
	for i := range c.Market.Companies {
		co := &c.Market.Companies[i]
		if len(co.Tiers) == 0 || len(co.Contracts) == 0 {
			return fmt.Errorf("%w: company %q needs buy and contract tiers", ErrInvalidConfig, co.ID)
		}
		if co.MinDemand <= 0 || co.MaxDemand < co.MinDemand || co.BasePrice <= 0 {
			return fmt.Errorf("%w: company %q demand/price bounds", ErrInvalidConfig, co.ID)
		}
		sort.Slice(co.Tiers, func(a, b int) bool { return co.Tiers[a].Amount < co.Tiers[b].Amount })
	}
	for _, s := range c.Progression.Skills {
		if s.BaseCost <= 0 || s.Multiplier < 1 {
			return fmt.Errorf("%w: skill %q", ErrInvalidConfig, s.ID)
		}
	}
	if c.Progression.LevelBase <= 0 || c.Progression.LevelGrowth < 1 {
		return fmt.Errorf("%w: level curve", ErrInvalidConfig)
	}
	if c.Extraction.OfflineEfficiency < 0 || c.Extraction.OfflineEfficiency > 1 {
		return fmt.Errorf("%w: offline_efficiency must be within [0,1]", ErrInvalidConfig)
	}
	return nil
}

// Rig returns the rig tier with the given id.
func (c *Config) Rig(id string) (RigTier, bool) {
	for _, r := range c.Rigs {
		if r.ID == id {
			return r, true
		}
	}
	return RigTier{}, false
}

// Skill returns the skill definition with the given id.
func (c *Config) Skill(id string) (Skill, bool) {
	for _, s := range c.Progression.Skills {
		if s.ID == id {
			return s, true
		}
	}
	return Skill{}, false
}

// Company returns the static company config with the given id.
func (c *Config) Company(id string) (Company, bool) {
	for _, co := range c.Market.Companies {
		if co.ID == id {
			return co, true
		}
	}
	return Company{}, false
}

// OilCategory returns the oil category with the given name.
func (c *Config) OilCategory(name string) (Category, bool) {
	for _, cat := range c.Land.OilCategories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}
