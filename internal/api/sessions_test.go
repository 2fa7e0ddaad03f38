package api_test

import (
	"context"
	"math/rand/v2"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oilbaron/sim-engine/internal/api"
	"github.com/oilbaron/sim-engine/internal/clock"
	"github.com/oilbaron/sim-engine/internal/config"
	"github.com/oilbaron/sim-engine/internal/save"
	"github.com/oilbaron/sim-engine/internal/store"
)

// stallingStore is a MemoryStore whose writes, and reads of one key, can be
// held until the caller's context ends or the store is released.
type stallingStore struct {
	*store.MemoryStore
	stallPuts atomic.Bool
	stallKey  string
	puts      atomic.Int32
	gets      atomic.Int32
	release   chan struct{}
	once      sync.Once
}

func newStallingStore(t *testing.T) *stallingStore {
	s := &stallingStore{MemoryStore: store.NewMemoryStore(), release: make(chan struct{})}
	t.Cleanup(s.Release)
	return s
}

func (s *stallingStore) Release() { s.once.Do(func() { close(s.release) }) }

func (s *stallingStore) wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.release:
		return nil
	}
}

func (s *stallingStore) Put(ctx context.Context, key string, blob []byte) error {
	s.puts.Add(1)
	if s.stallPuts.Load() {
		if err := s.wait(ctx); err != nil {
			return err
		}
	}
	return s.MemoryStore.Put(ctx, key, blob)
}

func (s *stallingStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.gets.Add(1)
	if key == s.stallKey {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.Get(ctx, key)
}

func newSessions(st store.Store, clk *clock.Fake, opts ...api.SessionOption) *api.Sessions {
	opts = append([]api.SessionOption{
		api.WithClock(clk),
		api.WithSeed(func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }),
	}, opts...)
	return api.NewSessions(config.Default(), save.NewPersister(st, false), nil, opts...)
}

// finishWithin fails the test when fn has not returned after limit.
func finishWithin(t *testing.T, limit time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(limit):
		t.Fatalf("still running after %s", limit)
	}
}

func TestAdvance_StalledAutosaveDoesNotHoldTicks(t *testing.T) {
	ms := newStallingStore(t)
	clk := clock.NewFake(t0)
	sessions := newSessions(ms, clk)
	alice := sessions.Get(context.Background(), "alice")
	bob := sessions.Get(context.Background(), "bob")
	ms.stallPuts.Store(true)

	finishWithin(t, 2*time.Second, func() {
		for i := 0; i < 31; i++ {
			sessions.Advance(clk.Advance(time.Second))
		}
	})

	want := t0.Add(31 * time.Second)
	assert.Equal(t, want, alice.Engine.State().LastOnlineTime)
	assert.Equal(t, want, bob.Engine.State().LastOnlineTime)
	require.Eventually(t, func() bool { return ms.puts.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	ms.Release()
	require.Eventually(t, func() bool {
		keys, err := ms.Keys(context.Background(), "oilbaron:save:")
		return err == nil && len(keys) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAdvance_AutosaveTimesOut(t *testing.T) {
	ms := newStallingStore(t)
	clk := clock.NewFake(t0)
	sessions := newSessions(ms, clk, api.WithSaveTimeout(20*time.Millisecond))
	sessions.Get(context.Background(), "alice")
	ms.stallPuts.Store(true)

	for i := 0; i < 60; i++ {
		sessions.Advance(clk.Advance(time.Second))
	}
	// Each autosave gives up at its deadline, so the second one is attempted.
	require.Eventually(t, func() bool { return ms.puts.Load() == 2 }, 2*time.Second, 10*time.Millisecond)
	keys, err := ms.Keys(context.Background(), "oilbaron:save:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestGet_SlowLoadDoesNotHoldTicks(t *testing.T) {
	ms := newStallingStore(t)
	ms.stallKey = save.Key("bob")
	clk := clock.NewFake(t0)
	sessions := newSessions(ms, clk)
	alice := sessions.Get(context.Background(), "alice")

	loaded := make(chan *api.Session)
	go func() { loaded <- sessions.Get(context.Background(), "bob") }()
	require.Eventually(t, func() bool { return ms.gets.Load() == 2 }, 2*time.Second, 10*time.Millisecond)

	finishWithin(t, 2*time.Second, func() {
		sessions.Advance(clk.Advance(time.Second))
	})
	assert.Equal(t, t0.Add(time.Second), alice.Engine.State().LastOnlineTime)
	assert.Equal(t, 1, sessions.Len())

	ms.Release()
	select {
	case bob := <-loaded:
		assert.Equal(t, "bob", bob.Identity)
	case <-time.After(2 * time.Second):
		t.Fatal("bob never loaded")
	}
	assert.Equal(t, 2, sessions.Len())
}

func TestGet_ConcurrentFirstUseSharesOneSession(t *testing.T) {
	ms := newStallingStore(t)
	sessions := newSessions(ms, clock.NewFake(t0))

	const callers = 8
	got := make([]*api.Session, callers)
	var wg sync.WaitGroup
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = sessions.Get(context.Background(), "carol")
		}()
	}
	wg.Wait()

	for _, sess := range got {
		assert.Same(t, got[0], sess)
	}
	assert.Equal(t, int32(1), ms.gets.Load())
	assert.Equal(t, 1, sessions.Len())
}

func TestGet_CancelledRequestStillLoadsSave(t *testing.T) {
	ms := store.NewMemoryStore()
	clk := clock.NewFake(t0)
	first := newSessions(ms, clk)
	_, err := first.Get(context.Background(), "alice").Engine.Work()
	require.NoError(t, err)
	require.NoError(t, first.SaveAll(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sess := newSessions(ms, clk).Get(ctx, "alice")
	assert.Equal(t, int64(1), sess.Engine.State().Stats.TotalClicks)
}

// --- Idle eviction ---

func TestEvict_SavesAndUnloadsIdleSessions(t *testing.T) {
	ms := store.NewMemoryStore()
	clk := clock.NewFake(t0)
	sessions := newSessions(ms, clk, api.WithIdleTTL(10*time.Minute))
	alice := sessions.Get(context.Background(), "alice")
	sessions.Get(context.Background(), "bob")

	clk.Advance(5 * time.Minute)
	sessions.Get(context.Background(), "bob")
	clk.Advance(6 * time.Minute)

	assert.Equal(t, 1, sessions.Evict(context.Background(), clk.Now()))
	assert.Equal(t, 1, sessions.Len())

	keys, err := ms.Keys(context.Background(), "oilbaron:save:")
	require.NoError(t, err)
	assert.Equal(t, []string{save.Key("alice")}, keys)

	again := sessions.Get(context.Background(), "alice")
	assert.NotSame(t, alice, again)
	assert.Equal(t, 11*time.Minute, again.Resumed.Elapsed)
}

func TestEvict_KeepsSessionWhenSaveFails(t *testing.T) {
	ms := newStallingStore(t)
	clk := clock.NewFake(t0)
	sessions := newSessions(ms, clk, api.WithIdleTTL(time.Minute), api.WithSaveTimeout(20*time.Millisecond))
	sessions.Get(context.Background(), "alice")
	ms.stallPuts.Store(true)

	assert.Zero(t, sessions.Evict(context.Background(), clk.Advance(2*time.Minute)))
	assert.Equal(t, 1, sessions.Len())
}

func TestEvict_Disabled(t *testing.T) {
	clk := clock.NewFake(t0)
	sessions := newSessions(store.NewMemoryStore(), clk, api.WithIdleTTL(0))
	sessions.Get(context.Background(), "alice")

	assert.Zero(t, sessions.Evict(context.Background(), clk.Advance(24*time.Hour)))
	assert.Equal(t, 1, sessions.Len())
}

func TestEvict_KeepsConnectedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := api.NewWSHub()
	go hub.Run(ctx)

	env := newTestEnv(t, nil, nil, hub)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws?player=alice"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Connected("alice") }, 2*time.Second, 10*time.Millisecond)

	env.sessions.Get(context.Background(), "bob")
	now := env.clock.Advance(time.Hour)
	assert.Equal(t, 1, env.sessions.Evict(context.Background(), now))
	assert.Equal(t, 1, env.sessions.Len())
	assert.True(t, hub.Connected("alice"))
}
