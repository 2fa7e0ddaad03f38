package save

import (
	"fmt"
	"math"
)

// maxPlausible bounds every numeric ledger and reserve value in a save.
const maxPlausible = 1e15

// Validate checks the shape of a migrated state tree: the parcel list is
// present, objects are objects, ids are positive and unique, and numeric
// values are finite and within plausible bounds.
func Validate(doc map[string]any) error {
	parcels, ok := doc["parcels"].([]any)
	if !ok {
		return fmt.Errorf("%w: parcels must be a list", ErrInvalid)
	}
	if v, ok := doc["player"]; ok && v != nil {
		player, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: player must be an object", ErrInvalid)
		}
		for _, key := range []string{"balance", "availableOil", "xp", "level"} {
			if err := bounded(player, key); err != nil {
				return err
			}
		}
	}

	ids := make(map[float64]bool, len(parcels))
	for i, e := range parcels {
		p, ok := e.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: parcel %d is not an object", ErrInvalid, i)
		}
		id, ok := number(p["id"])
		if !ok || id <= 0 || id != math.Trunc(id) {
			return fmt.Errorf("%w: parcel %d has invalid id", ErrInvalid, i)
		}
		if ids[id] {
			return fmt.Errorf("%w: duplicate parcel id %v", ErrInvalid, id)
		}
		ids[id] = true
		for _, key := range []string{"totalOil", "currentOil", "basePrice"} {
			if err := bounded(p, key); err != nil {
				return err
			}
		}
		if rigs, ok := p["rigs"]; ok && rigs != nil {
			if _, ok := rigs.([]any); !ok {
				return fmt.Errorf("%w: parcel %v rigs must be a list", ErrInvalid, id)
			}
		}
	}

	if v, ok := doc["companies"]; ok && v != nil {
		companies, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%w: companies must be a list", ErrInvalid)
		}
		for i, e := range companies {
			c, ok := e.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: company %d is not an object", ErrInvalid, i)
			}
			if id, ok := c["id"].(string); !ok || id == "" {
				return fmt.Errorf("%w: company %d has no id", ErrInvalid, i)
			}
			for _, key := range []string{"currentPrice", "currentDemand", "currentMinBuy"} {
				if err := bounded(c, key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bounded accepts an absent field or a finite number within maxPlausible.
// Decimal fields may be serialized as strings.
func bounded(obj map[string]any, key string) error {
	v, ok := obj[key]
	if !ok || v == nil {
		return nil
	}
	f, ok := number(v)
	if !ok {
		s, isString := v.(string)
		if !isString {
			return fmt.Errorf("%w: %s is not numeric", ErrInvalid, key)
		}
		if _, err := fmt.Sscan(s, &f); err != nil {
			return fmt.Errorf("%w: %s is not numeric", ErrInvalid, key)
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > maxPlausible {
		return fmt.Errorf("%w: %s out of bounds", ErrInvalid, key)
	}
	return nil
}
