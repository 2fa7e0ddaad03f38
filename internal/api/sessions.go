package api

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/oilbaron/sim-engine/internal/clock"
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/game"
	"github.com/oilbaron/sim-engine/internal/metrics"
	"github.com/oilbaron/sim-engine/internal/model"
	"github.com/oilbaron/sim-engine/internal/save"
	"github.com/oilbaron/sim-engine/internal/store"
)

const (
	defaultSaveTimeout = 10 * time.Second
	defaultIdleTTL     = 30 * time.Minute
)

// Session is one identity's running game.
type Session struct {
	ID       string // per-process session id, for logs and websocket hellos
	Identity string
	Key      string
	Engine   *game.Engine
	Resumed  game.OfflineReport
	clicks   *rate.Limiter

	lastSeen time.Time // guarded by Sessions.mu

	saveMu  sync.Mutex // guards pending and saving
	pending *model.State
	saving  bool
	writeMu sync.Mutex // one store write at a time per session
}

// Sessions owns the engine of every identity seen by this process. Engines
// are loaded lazily on first use, saved in the background on autosave and
// unloaded after sitting idle.
type Sessions struct {
	cfg         *config.Config
	persister   *save.Persister
	clock       clock.Clock
	hub         *WSHub
	click       rate.Limit
	burst       int
	seed        func() *rand.Rand
	saveTimeout time.Duration
	idleTTL     time.Duration

	loads    singleflight.Group
	mu       sync.Mutex
	sessions map[string]*Session
}

// SessionOption customizes a Sessions registry.
type SessionOption func(*Sessions)

// WithClock replaces the wall clock.
func WithClock(c clock.Clock) SessionOption {
	return func(s *Sessions) { s.clock = c }
}

// WithSeed replaces the per-session random source.
func WithSeed(fn func() *rand.Rand) SessionOption {
	return func(s *Sessions) { s.seed = fn }
}

// WithClickLimit sets the sustained click rate and burst per identity.
func WithClickLimit(perSecond float64, burst int) SessionOption {
	return func(s *Sessions) {
		s.click = rate.Limit(perSecond)
		s.burst = burst
	}
}

// WithSaveTimeout bounds every background load and save.
func WithSaveTimeout(d time.Duration) SessionOption {
	return func(s *Sessions) { s.saveTimeout = d }
}

// WithIdleTTL sets how long a session may go untouched before Evict
// unloads it. Zero disables eviction.
func WithIdleTTL(d time.Duration) SessionOption {
	return func(s *Sessions) { s.idleTTL = d }
}

// NewSessions creates an empty registry. hub may be nil.
func NewSessions(cfg *config.Config, p *save.Persister, hub *WSHub, opts ...SessionOption) *Sessions {
	s := &Sessions{
		cfg:       cfg,
		persister: p,
		clock:     clock.Real{},
		hub:       hub,
		click:     20,
		burst:     40,
		seed: func() *rand.Rand {
			return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
		},
		saveTimeout: defaultSaveTimeout,
		idleTTL:     defaultIdleTTL,
		sessions:    make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the session for identity, loading or creating it on first
// use. An empty identity is the guest. The store is read outside the
// registry lock and concurrent first requests share one load.
func (s *Sessions) Get(ctx context.Context, identity string) *Session {
	if identity == "" {
		identity = save.GuestIdentity
	}
	if sess := s.lookup(identity); sess != nil {
		return sess
	}

	v, _, _ := s.loads.Do(identity, func() (any, error) {
		if sess := s.lookup(identity); sess != nil {
			return sess, nil
		}
		sess := s.load(ctx, identity)

		s.mu.Lock()
		sess.lastSeen = s.clock.Now()
		s.sessions[identity] = sess
		n := len(s.sessions)
		s.mu.Unlock()
		metrics.ActiveSessions.Set(float64(n))
		return sess, nil
	})
	return v.(*Session)
}

func (s *Sessions) lookup(identity string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[identity]
	if !ok {
		return nil
	}
	sess.lastSeen = s.clock.Now()
	return sess
}

// load builds the engine for identity from its save, or from defaults when
// there is none or it cannot be read. The load outlives a cancelled request
// so a client hanging up cannot turn a readable save into a fresh game.
func (s *Sessions) load(ctx context.Context, identity string) *Session {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()

	key := save.Key(identity)
	rng := s.seed()
	now := s.clock.Now()
	defaults := game.NewState(s.cfg, rng, now)

	st, rep, err := s.persister.Load(ctx, key, defaults)
	switch {
	case errors.Is(err, store.ErrNotFound):
		slog.Info("new game", "player", identity)
		st = defaults
	case err != nil:
		slog.Warn("save unreadable, starting from defaults", "player", identity, "err", err)
		st = defaults
	default:
		slog.Info("game loaded", "player", identity, "from", rep.Version, "migrations", rep.Migrations)
	}

	sess := &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		Key:      key,
		Engine:   game.New(s.cfg, st, s.clock, rng),
		clicks:   rate.NewLimiter(s.click, s.burst),
	}
	sess.Engine.OnAutosave(func(st model.State) {
		s.queueSave(sess, st)
	})
	if s.hub != nil {
		hub := s.hub
		sess.Engine.Subscribe(func(snap game.Snapshot) {
			hub.Broadcast(identity, WSMessage{Type: MsgSnapshot, Session: sess.ID, Snapshot: &snap})
		})
	}

	sess.Resumed = sess.Engine.Resume()
	if sess.Resumed.Summary != "" {
		slog.Info("offline progress", "player", identity, "summary", sess.Resumed.Summary)
	}
	return sess
}

// AllowClick reports whether identity may click now.
func (sess *Session) AllowClick() bool {
	return sess.clicks.Allow()
}

func (s *Sessions) all() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Advance moves every loaded game to now.
func (s *Sessions) Advance(now time.Time) {
	for _, sess := range s.all() {
		sess.Engine.Advance(now)
	}
}

// queueSave hands st to the session's background writer and returns at
// once. Only the newest queued state is kept while a write is in flight.
func (s *Sessions) queueSave(sess *Session, st model.State) {
	sess.saveMu.Lock()
	sess.pending = &st
	if sess.saving {
		sess.saveMu.Unlock()
		return
	}
	sess.saving = true
	sess.saveMu.Unlock()
	go s.drain(sess)
}

func (s *Sessions) drain(sess *Session) {
	for {
		sess.saveMu.Lock()
		st := sess.pending
		sess.pending = nil
		if st == nil {
			sess.saving = false
			sess.saveMu.Unlock()
			return
		}
		sess.saveMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
		err := s.write(ctx, sess, *st)
		cancel()
		if err != nil {
			slog.Error("autosave failed", "player", sess.Identity, "err", err)
		}
	}
}

func (s *Sessions) write(ctx context.Context, sess *Session, st model.State) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return s.persister.Save(ctx, sess.Key, st, s.clock.Now())
}

// Save writes one session to the store, superseding any queued autosave.
func (s *Sessions) Save(ctx context.Context, sess *Session) error {
	sess.saveMu.Lock()
	sess.pending = nil
	sess.saveMu.Unlock()
	return s.write(ctx, sess, sess.Engine.State())
}

// SaveAll writes every loaded game. Failures are logged and the first one
// is returned after all sessions were attempted.
func (s *Sessions) SaveAll(ctx context.Context) error {
	var first error
	for _, sess := range s.all() {
		if err := s.Save(ctx, sess); err != nil {
			slog.Error("save failed", "player", sess.Identity, "err", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// Evict saves and unloads every session untouched for longer than the idle
// TTL. Sessions with a connected websocket client stay loaded, and a
// session whose save fails is kept for the next pass. Returns the number
// unloaded.
func (s *Sessions) Evict(ctx context.Context, now time.Time) int {
	if s.idleTTL <= 0 {
		return 0
	}
	var idle []*Session
	s.mu.Lock()
	for _, sess := range s.sessions {
		if s.expired(sess, now) {
			idle = append(idle, sess)
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, sess := range idle {
		sctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
		err := s.Save(sctx, sess)
		cancel()
		if err != nil {
			slog.Warn("idle session kept, save failed", "player", sess.Identity, "err", err)
			continue
		}
		s.mu.Lock()
		if cur := s.sessions[sess.Identity]; cur == sess && s.expired(sess, now) {
			delete(s.sessions, sess.Identity)
			evicted++
		}
		s.mu.Unlock()
	}
	if evicted > 0 {
		metrics.ActiveSessions.Set(float64(s.Len()))
		slog.Info("idle sessions unloaded", "count", evicted)
	}
	return evicted
}

// expired must be called with s.mu held.
func (s *Sessions) expired(sess *Session, now time.Time) bool {
	if now.Sub(sess.lastSeen) <= s.idleTTL {
		return false
	}
	return s.hub == nil || !s.hub.Connected(sess.Identity)
}

// Len is the number of loaded sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
