package save

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/store"
)

const keyPrefix = "oilbaron:save:"

// GuestIdentity names the shared save slot used without an identity.
const GuestIdentity = "guest"

// Key returns the storage key for an identity, or the guest key when the
// identity is empty.
func Key(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = GuestIdentity
	}
	return keyPrefix + identity
}

// Persister reads and writes save envelopes through a Store.
type Persister struct {
	store    store.Store
	compress bool
}

// NewPersister creates a persister. When compress is set, new saves are
// written as zstd frames; loading accepts both forms either way.
func NewPersister(st store.Store, compress bool) *Persister {
	return &Persister{store: st, compress: compress}
}

// Save encodes st and writes it under key.
func (p *Persister) Save(ctx context.Context, key string, st model.State, now time.Time) error {
	blob, err := Encode(st, now)
	if err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return err
	}
	if p.compress {
		blob = Compress(blob)
	}
	if err := p.store.Put(ctx, key, blob); err != nil {
		metrics.SavesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("save %s: %w", key, err)
	}
	metrics.SavesTotal.WithLabelValues("ok").Inc()
	return nil
}

// Load reads and decodes the save under key. It returns store.ErrNotFound
// when no save exists; any other error means the save was unreadable and
// the caller should start from defaults.
func (p *Persister) Load(ctx context.Context, key string, defaults model.State) (model.State, Report, error) {
	blob, err := p.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		metrics.LoadsTotal.WithLabelValues("missing").Inc()
		return model.State{}, Report{}, err
	}
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("error").Inc()
		return model.State{}, Report{}, fmt.Errorf("load %s: %w", key, err)
	}

	raw, err := Decompress(blob)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("rejected").Inc()
		return model.State{}, Report{}, err
	}
	st, rep, err := Decode(raw, defaults)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("rejected").Inc()
		slog.Warn("save rejected", "key", key, "version", rep.Version, "err", err)
		return model.State{}, rep, err
	}
	metrics.LoadsTotal.WithLabelValues("ok").Inc()
	if len(rep.Migrations) > 0 || rep.Backfilled > 0 {
		slog.Info("save upgraded", "key", key, "from", rep.Version,
			"migrations", rep.Migrations, "backfilled", rep.Backfilled)
	}
	return st, rep, nil
}
