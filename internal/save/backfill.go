package save

import (
	"encoding/json"
	"time"

	"github.com/oilbaron/sim-engine/internal/model"
)

// Backfill copies every field present in tmpl but absent (or null) in doc.
// Present fields are never overwritten. doc must already have passed
// Validate, so its parcels list exists. Parcels and rigs are filled from
// per-element templates stamped with savedAt; companies are filled from the
// template company with the same id, and configured companies missing from
// doc are appended. Returns the number of fields added.
func Backfill(doc, tmpl map[string]any, savedAt time.Time) int {
	n := fill(doc, tmpl, "parcels", "companies")

	parcelTmpl := mustDoc(model.Parcel{
		Rigs:                 []model.Rig{},
		PurchasedAt:          savedAt,
		LastDegradationCheck: savedAt,
	})
	delete(parcelTmpl, "id")
	rigTmpl := mustDoc(model.Rig{InstalledAt: savedAt})
	delete(rigTmpl, "tier")
	for _, p := range objects(doc["parcels"]) {
		if _, ok := p["totalOil"]; !ok {
			if cur, ok := p["currentOil"]; ok {
				p["totalOil"] = cur
				n++
			}
		}
		n += fill(p, parcelTmpl)
		for _, r := range objects(p["rigs"]) {
			n += fill(r, rigTmpl)
		}
	}

	defaults := objects(tmpl["companies"])
	byID := make(map[string]map[string]any, len(defaults))
	for _, c := range defaults {
		if id, ok := c["id"].(string); ok {
			byID[id] = c
		}
	}
	companies, ok := doc["companies"].([]any)
	if !ok && doc["companies"] == nil {
		companies = []any{}
	}
	seen := make(map[string]bool)
	for _, c := range objects(companies) {
		id, _ := c["id"].(string)
		seen[id] = true
		if def, ok := byID[id]; ok {
			n += fill(c, def)
		}
	}
	for _, c := range defaults {
		id, _ := c["id"].(string)
		if !seen[id] {
			companies = append(companies, clone(c))
			n++
		}
	}
	if companies != nil {
		doc["companies"] = companies
	}
	return n
}

func fill(dst, tmpl map[string]any, skip ...string) int {
	n := 0
	for k, tv := range tmpl {
		if contains(skip, k) {
			continue
		}
		dv, ok := dst[k]
		if !ok || dv == nil {
			if tv != nil {
				dst[k] = clone(tv)
				n++
			}
			continue
		}
		dm, dok := dv.(map[string]any)
		tm, tok := tv.(map[string]any)
		if dok && tok {
			n += fill(dm, tm)
		}
	}
	return n
}

func clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = clone(e)
		}
		return out
	}
	return v
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}
	return false
}

func mustDoc(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	doc, err := parseDoc(data)
	if err != nil {
		panic(err)
	}
	return doc
}
