package save

import (
	"encoding/json"
	"sort"
	"time"
)

// Migration is one named structural upgrade of a raw state tree. Apply
// reports whether it changed anything and must be idempotent.
type Migration struct {
	Name  string
	Apply func(doc map[string]any) bool
}

// Migrations run in order on every load.
var Migrations = []Migration{
	{Name: "lands-to-parcels", Apply: landsToParcels},
	{Name: "rig-to-rigs", Apply: rigToRigs},
	{Name: "flat-player", Apply: flatPlayer},
	{Name: "achievement-set", Apply: achievementSet},
	{Name: "epoch-ms-timestamps", Apply: epochTimestamps},
}

// Migrate applies every migration to doc and returns the names of those
// that changed it.
func Migrate(doc map[string]any) []string {
	var applied []string
	for _, m := range Migrations {
		if m.Apply(doc) {
			applied = append(applied, m.Name)
		}
	}
	return applied
}

// move renames src to dst inside obj without losing either side. An absent
// or null dst takes the legacy value; two lists are merged, keeping dst's
// entry when both carry the same id; two numbers keep the larger. Any other
// existing dst wins.
func move(obj map[string]any, src, dst string) bool {
	v, ok := obj[src]
	if !ok {
		return false
	}
	delete(obj, src)

	cur, exists := obj[dst]
	if !exists || cur == nil {
		obj[dst] = v
		return true
	}
	switch c := cur.(type) {
	case []any:
		if legacy, ok := v.([]any); ok {
			obj[dst] = mergeByID(c, legacy)
		}
	default:
		a, aok := number(cur)
		b, bok := number(v)
		if aok && bok && b > a {
			obj[dst] = v
		}
	}
	return true
}

// mergeByID appends the entries of legacy whose id is not already in list.
// Entries without a numeric id are always kept.
func mergeByID(list, legacy []any) []any {
	seen := make(map[float64]bool, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			if id, ok := number(m["id"]); ok {
				seen[id] = true
			}
		}
	}
	for _, e := range legacy {
		if m, ok := e.(map[string]any); ok {
			if id, ok := number(m["id"]); ok && seen[id] {
				continue
			}
		}
		list = append(list, e)
	}
	return list
}

func landsToParcels(doc map[string]any) bool {
	a := move(doc, "lands", "parcels")
	b := move(doc, "nextLandId", "nextParcelId")
	return a || b
}

func rigToRigs(doc map[string]any) bool {
	changed := false
	for _, p := range objects(doc["parcels"]) {
		if legacy, ok := p["rig"]; ok {
			rigs, _ := p["rigs"].([]any)
			p["rigs"] = mergeRigs(rigs, legacyRigs(legacy))
			delete(p, "rig")
			changed = true
		}
		rigs, ok := p["rigs"].([]any)
		if !ok {
			continue
		}
		for i, r := range rigs {
			switch v := r.(type) {
			case string:
				rigs[i] = map[string]any{"tier": v}
				changed = true
			case map[string]any:
				if move(v, "type", "tier") {
					changed = true
				}
			}
		}
	}
	return changed
}

// mergeRigs appends the legacy single-slot rig unless a rig of the same
// tier is already listed.
func mergeRigs(rigs, legacy []any) []any {
	if rigs == nil {
		rigs = []any{}
	}
	for _, r := range legacy {
		if !hasTier(rigs, rigTier(r)) {
			rigs = append(rigs, r)
		}
	}
	return rigs
}

func hasTier(rigs []any, tier string) bool {
	if tier == "" {
		return false
	}
	for _, r := range rigs {
		if rigTier(r) == tier {
			return true
		}
	}
	return false
}

func rigTier(r any) string {
	switch v := r.(type) {
	case string:
		return v
	case map[string]any:
		if t, ok := v["tier"].(string); ok {
			return t
		}
		t, _ := v["type"].(string)
		return t
	}
	return ""
}

func legacyRigs(v any) []any {
	switch r := v.(type) {
	case nil, bool:
		return []any{}
	case []any:
		return r
	default:
		return []any{r}
	}
}

var legacySkills = map[string]string{
	"clickPowerLevel":     "click_power",
	"analysisLevel":       "analysis",
	"extractionTechLevel": "extraction_tech",
	"negotiationLevel":    "negotiation",
}

var legacyPlayer = map[string]string{
	"money":        "balance",
	"availableOil": "availableOil",
	"level":        "level",
	"xp":           "xp",
	"achievements": "achievements",
}

var legacyStats = map[string]string{
	"totalClicks": "totalClicks",
	"totalEarned": "totalEarned",
	"playtime":    "playtimeSeconds",
}

// flatPlayer moves ledger fields that older saves kept at the top level
// into the player and stats objects.
func flatPlayer(doc map[string]any) bool {
	changed := false
	player := child(doc, "player")
	for src, dst := range legacyPlayer {
		changed = moveInto(doc, src, player, dst) || changed
	}
	skills := child(player, "skills")
	for src, dst := range legacySkills {
		changed = moveInto(doc, src, skills, dst) || changed
	}
	stats := child(doc, "stats")
	for src, dst := range legacyStats {
		changed = moveInto(doc, src, stats, dst) || changed
	}
	return changed
}

// achievementSet converts an {id: true} map into the sorted id list.
func achievementSet(doc map[string]any) bool {
	player, ok := doc["player"].(map[string]any)
	if !ok {
		return false
	}
	set, ok := player["achievements"].(map[string]any)
	if !ok {
		return false
	}
	ids := make([]string, 0, len(set))
	for id, unlocked := range set {
		if b, ok := unlocked.(bool); ok && !b {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = id
	}
	player["achievements"] = list
	return true
}

// epochTimestamps rewrites epoch-millisecond timestamps as RFC 3339.
func epochTimestamps(doc map[string]any) bool {
	changed := false
	changed = rewriteTime(doc, "createdAt", false) || changed
	changed = rewriteTime(doc, "lastOnlineTime", false) || changed
	if a, ok := doc["allowance"].(map[string]any); ok {
		changed = rewriteTime(a, "watermark", false) || changed
	}
	for _, p := range objects(doc["parcels"]) {
		changed = rewriteTime(p, "purchasedAt", false) || changed
		changed = rewriteTime(p, "lastDegradationCheck", false) || changed
		for _, r := range objects(p["rigs"]) {
			changed = rewriteTime(r, "installedAt", false) || changed
		}
	}
	for _, c := range objects(doc["companies"]) {
		changed = rewriteTime(c, "cooldownUntil", true) || changed
	}
	return changed
}

func rewriteTime(obj map[string]any, key string, zeroIsNull bool) bool {
	ms, ok := number(obj[key])
	if !ok {
		return false
	}
	if ms == 0 && zeroIsNull {
		obj[key] = nil
		return true
	}
	obj[key] = time.UnixMilli(int64(ms)).UTC().Format(time.RFC3339Nano)
	return true
}

func moveInto(from map[string]any, src string, to map[string]any, dst string) bool {
	v, ok := from[src]
	if !ok || to == nil {
		return false
	}
	if _, exists := to[dst]; !exists {
		to[dst] = v
	}
	delete(from, src)
	return true
}

// child returns obj[key] as an object, creating it when absent. It returns
// nil when the key holds something other than an object.
func child(obj map[string]any, key string) map[string]any {
	if obj == nil {
		return nil
	}
	switch v := obj[key].(type) {
	case map[string]any:
		return v
	case nil:
		m := map[string]any{}
		obj[key] = m
		return m
	}
	return nil
}

func objects(v any) []map[string]any {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
