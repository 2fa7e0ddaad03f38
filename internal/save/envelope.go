// Package save serializes the game state into a versioned, checksummed
// envelope and loads older envelopes through an ordered migration chain.
package save

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"lukechampine.com/blake3"

	"github.com/oilbaron/sim-engine/internal/model"
)

// Version is the current save schema version.
const Version = "3"

// checksumSince is the first schema version that always carries a checksum.
const checksumSince = 3

var (
	ErrCorrupt  = errors.New("save: corrupt envelope")
	ErrChecksum = errors.New("save: checksum mismatch")
	ErrInvalid  = errors.New("save: state failed validation")
)

// Envelope is the persisted layout. State holds the serialized state tree
// exactly as it was checksummed.
type Envelope struct {
	Version  string          `json:"version"`
	SavedAt  int64           `json:"savedAt"`
	Checksum string          `json:"checksum"`
	State    json.RawMessage `json:"state"`
}

// Report describes what happened while decoding a save.
type Report struct {
	Version    string
	SavedAt    time.Time
	Migrations []string
	Backfilled int
}

// Checksum returns the hex BLAKE3-256 digest of data.
func Checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Encode serializes st into an envelope stamped with now.
func Encode(st model.State, now time.Time) ([]byte, error) {
	body, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("marshal state: %w", err)
	}
	return json.Marshal(Envelope{
		Version:  Version,
		SavedAt:  now.UnixMilli(),
		Checksum: Checksum(body),
		State:    body,
	})
}

// Decode parses an envelope, verifies its checksum, migrates and validates
// the state tree and backfills it against defaults. Saves without a
// timestamp backfill missing watermarks with defaults.CreatedAt. Any error
// means the caller should fall back to defaults.
func Decode(blob []byte, defaults model.State) (model.State, Report, error) {
	var rep Report

	var env Envelope
	if err := json.Unmarshal(blob, &env); err != nil {
		return model.State{}, rep, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(env.State) == 0 || bytes.Equal(env.State, []byte("null")) {
		return model.State{}, rep, fmt.Errorf("%w: missing state", ErrCorrupt)
	}
	rep.Version = env.Version
	rep.SavedAt = time.UnixMilli(env.SavedAt).UTC()

	switch {
	case env.Checksum != "":
		if Checksum(env.State) != env.Checksum {
			return model.State{}, rep, ErrChecksum
		}
	case major(env.Version) >= checksumSince:
		return model.State{}, rep, fmt.Errorf("%w: missing checksum for version %s", ErrChecksum, env.Version)
	}

	doc, err := parseDoc(env.State)
	if err != nil {
		return model.State{}, rep, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	rep.Migrations = Migrate(doc)
	if err := Validate(doc); err != nil {
		return model.State{}, rep, err
	}

	tmpl, err := toDoc(defaults)
	if err != nil {
		return model.State{}, rep, fmt.Errorf("template: %w", err)
	}
	stamp := rep.SavedAt
	if env.SavedAt <= 0 {
		stamp = defaults.CreatedAt
	}
	rep.Backfilled = Backfill(doc, tmpl, stamp)

	st, err := fromDoc(doc)
	if err != nil {
		return model.State{}, rep, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return st, rep, nil
}

// major parses the leading integer of a version tag ("2", "2.1.0", "v3").
// Unparseable tags are treated as the oldest schema.
func major(version string) int {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		v = v[:i]
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func parseDoc(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("state is not an object")
	}
	return doc, nil
}

func toDoc(st model.State) (map[string]any, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return nil, err
	}
	return parseDoc(data)
}

func fromDoc(doc map[string]any) (model.State, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return model.State{}, err
	}
	var st model.State
	if err := json.Unmarshal(data, &st); err != nil {
		return model.State{}, err
	}
	return st, nil
}
