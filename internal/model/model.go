// Package model defines the simulation state tree shared across the engine.
// Money and oil inventory use shopspring/decimal; parcel reserves and market
// demand are whole units.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rig is an installed extraction rig. Tier references config.RigTier.ID.
type Rig struct {
	Tier        string    `json:"tier"`
	InstalledAt time.Time `json:"installedAt"`
}

// Parcel is a generated land plot. Id, categories, base price and total
// reserve are fixed at generation.
type Parcel struct {
	ID                   int64           `json:"id"`
	PriceCategory        string          `json:"priceCategory"`
	OilCategory          string          `json:"oilCategory"`
	BasePrice            decimal.Decimal `json:"basePrice"`
	TotalOil             int64           `json:"totalOil"`
	CurrentOil           int64           `json:"currentOil"`
	Owned                bool            `json:"owned"`
	Analyzed             bool            `json:"analyzed"`
	Depleted             bool            `json:"depleted"`
	Rigs                 []Rig           `json:"rigs"`
	PurchasedAt          time.Time       `json:"purchasedAt"`
	LastDegradationCheck time.Time       `json:"lastDegradationCheck"`
}

// Productive reports whether the parcel extracts on the next tick.
func (p *Parcel) Productive() bool {
	return p.Owned && !p.Depleted && p.CurrentOil > 0 && len(p.Rigs) > 0
}

// Company status values.
const (
	StatusActive   = "active"
	StatusCooldown = "cooldown"
)

// Company is the dynamic market state of one counterparty. Static bounds
// live in config.Company with the same ID.
type Company struct {
	ID            string          `json:"id"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	CurrentDemand int64           `json:"currentDemand"`
	CurrentMinBuy int64           `json:"currentMinBuy"`
	TierIndex     int             `json:"tierIndex"`
	CooldownUntil *time.Time      `json:"cooldownUntil"`
	ContractLevel int             `json:"contractLevel"`
}

// Status returns StatusCooldown while a cooldown is pending expiry.
func (c *Company) Status() string {
	if c.CooldownUntil != nil {
		return StatusCooldown
	}
	return StatusActive
}

// Bonus is a permanent modifier stack for one target: value = (base + Add) * Mul.
type Bonus struct {
	Add decimal.Decimal `json:"add"`
	Mul decimal.Decimal `json:"mul"`
}

// Player is the economy ledger.
type Player struct {
	Balance      decimal.Decimal  `json:"balance"`
	AvailableOil decimal.Decimal  `json:"availableOil"`
	Skills       map[string]int   `json:"skills"`
	Level        int              `json:"level"`
	XP           int64            `json:"xp"`
	Bonuses      map[string]Bonus `json:"bonuses"`
	Achievements []string         `json:"achievements"`
}

// HasAchievement reports whether id is already unlocked.
func (p *Player) HasAchievement(id string) bool {
	for _, a := range p.Achievements {
		if a == id {
			return true
		}
	}
	return false
}

// Stats are bookkeeping counters. They feed achievements and the UI.
type Stats struct {
	TotalClicks       int64           `json:"totalClicks"`
	TotalEarned       decimal.Decimal `json:"totalEarned"`
	TotalOilExtracted decimal.Decimal `json:"totalOilExtracted"`
	TotalOilSold      int64           `json:"totalOilSold"`
	ParcelsBought     int64           `json:"parcelsBought"`
	RigsInstalled     int64           `json:"rigsInstalled"`
	Analyses          int64           `json:"analyses"`
	PlaytimeSeconds   int64           `json:"playtimeSeconds"`
	StreakDays        int             `json:"streakDays"`
	LastPlayDay       string          `json:"lastPlayDay"`
}

// Allowance is the land refresh budget.
type Allowance struct {
	Units     int       `json:"units"`
	Watermark time.Time `json:"watermark"`
}

// State is the complete mutable game state persisted in a save.
type State struct {
	Player         Player    `json:"player"`
	Parcels        []Parcel  `json:"parcels"`
	Companies      []Company `json:"companies"`
	NextParcelID   int64     `json:"nextParcelId"`
	Allowance      Allowance `json:"allowance"`
	Generated      bool      `json:"generated"`
	Stats          Stats     `json:"stats"`
	CreatedAt      time.Time `json:"createdAt"`
	LastOnlineTime time.Time `json:"lastOnlineTime"`
}

// Parcel returns the parcel with the given id, or nil.
func (s *State) Parcel(id int64) *Parcel {
	for i := range s.Parcels {
		if s.Parcels[i].ID == id {
			return &s.Parcels[i]
		}
	}
	return nil
}

// Company returns the company state with the given id, or nil.
func (s *State) Company(id string) *Company {
	for i := range s.Companies {
		if s.Companies[i].ID == id {
			return &s.Companies[i]
		}
	}
	return nil
}

// RemoveParcel drops the parcel with the given id. Ids are never reused.
func (s *State) RemoveParcel(id int64) {
	kept := s.Parcels[:0]
	for _, p := range s.Parcels {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.Parcels = kept
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *State) Clone() State {
	out := *s

	out.Player.Skills = make(map[string]int, len(s.Player.Skills))
	for k, v := range s.Player.Skills {
		out.Player.Skills[k] = v
	}
	out.Player.Bonuses = make(map[string]Bonus, len(s.Player.Bonuses))
	for k, v := range s.Player.Bonuses {
		out.Player.Bonuses[k] = v
	}
	out.Player.Achievements = append([]string(nil), s.Player.Achievements...)

	out.Parcels = make([]Parcel, len(s.Parcels))
	for i, p := range s.Parcels {
		p.Rigs = append([]Rig(nil), p.Rigs...)
		out.Parcels[i] = p
	}

	out.Companies = make([]Company, len(s.Companies))
	for i, c := range s.Companies {
		if c.CooldownUntil != nil {
			until := *c.CooldownUntil
			c.CooldownUntil = &until
		}
		out.Companies[i] = c
	}
	return out
}
