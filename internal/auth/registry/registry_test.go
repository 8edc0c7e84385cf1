package registry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/config"
)

type fakeStrategy struct {
	name     string
	err      error
	panicMsg string
	routes   []Route

	mu    sync.Mutex
	calls int
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) Validate(snap *config.Snapshot) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.err
}

func (f *fakeStrategy) Routes() []Route { return f.routes }

func (f *fakeStrategy) validateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRouter struct {
	mu       sync.Mutex
	routes   []Route
	replaces int
	auth     bool
}

func (f *fakeRouter) ReplaceRoutes(routes []Route) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = routes
	f.replaces++
}

func (f *fakeRouter) EnableAuth(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = enabled
}

func (f *fakeRouter) state() (int, int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.routes), f.replaces, f.auth
}

func noop(http.ResponseWriter, *http.Request) {}

func route(path string) Route {
	return Route{Method: http.MethodGet, Path: path, Handler: noop}
}

func TestRebuildStatusArena(t *testing.T) {
	holder := config.NewHolder(config.DefaultSnapshot())
	router := &fakeRouter{}
	good := &fakeStrategy{name: "google", routes: []Route{route("/auth/google"), route("/auth/google/callback")}}
	bad := &fakeStrategy{name: "github", err: errors.New("missing credentials")}
	boom := &fakeStrategy{name: "kakao", panicMsg: "bad table row"}

	r := New(holder, config.NewLocalNotifier(), router, []Strategy{good, bad, boom})
	r.Rebuild(context.Background())

	assert.Equal(t, provider.StatusActive, r.Status("google"))
	assert.Equal(t, provider.StatusInactive, r.Status("github"))
	assert.Equal(t, provider.StatusError, r.Status("kakao"))
	assert.Equal(t, provider.StatusInactive, r.Status("never-registered"))

	nRoutes, _, auth := router.state()
	assert.Equal(t, 2, nRoutes, "only active strategies contribute routes")
	assert.True(t, auth)
}

func TestRebuildNoActiveStrategies(t *testing.T) {
	holder := config.NewHolder(config.DefaultSnapshot())
	router := &fakeRouter{}
	r := New(holder, config.NewLocalNotifier(), router,
		[]Strategy{&fakeStrategy{name: "google", err: errors.New("disabled")}})
	r.Rebuild(context.Background())

	nRoutes, _, auth := router.state()
	assert.Zero(t, nRoutes)
	assert.False(t, auth, "no middleware without active strategies")
}

func TestDisabledStrategyStaysInactive(t *testing.T) {
	holder := config.NewHolder(config.DefaultSnapshot())
	router := &fakeRouter{}
	s := &fakeStrategy{name: "google", err: errors.New("disabled"), routes: []Route{route("/auth/google")}}
	r := New(holder, config.NewLocalNotifier(), router, []Strategy{s})

	for i := 0; i < 5; i++ {
		r.Rebuild(context.Background())
	}
	assert.Equal(t, provider.StatusInactive, r.Status("google"))
	nRoutes, _, _ := router.state()
	assert.Zero(t, nRoutes, "repeated validation never registers a disabled strategy's routes")
}

func TestRunConsumesBusEvents(t *testing.T) {
	holder := config.NewHolder(config.DefaultSnapshot())
	router := &fakeRouter{}
	notifier := config.NewLocalNotifier()
	s := &fakeStrategy{name: "google"}
	r := New(holder, notifier, router, []Strategy{s})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Boot rebuild.
	require.Eventually(t, func() bool { return s.validateCalls() >= 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, notifier.Notify(ctx))
	require.Eventually(t, func() bool { return s.validateCalls() >= 2 },
		time.Second, 10*time.Millisecond)

	// A burst coalesces: many signals, bounded rebuilds, loop stays alive.
	for i := 0; i < 20; i++ {
		require.NoError(t, notifier.Notify(ctx))
	}
	require.Eventually(t, func() bool { return s.validateCalls() >= 3 },
		time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry loop did not stop")
	}
}

func TestRebuildFollowsSnapshotSwap(t *testing.T) {
	holder := config.NewHolder(config.DefaultSnapshot())
	router := &fakeRouter{}

	// A strategy whose activation tracks the snapshot, like the engines do.
	s := &snapStrategy{name: "google"}
	r := New(holder, config.NewLocalNotifier(), router, []Strategy{s})

	r.Rebuild(context.Background())
	assert.Equal(t, provider.StatusInactive, r.Status("google"))

	next := config.DefaultSnapshot()
	next.Providers["google"] = config.ProviderSettings{Enabled: true, ClientID: "c", ClientSecret: "s"}
	holder.Swap(next)

	r.Rebuild(context.Background())
	assert.Equal(t, provider.StatusActive, r.Status("google"))
}

type snapStrategy struct{ name string }

func (s *snapStrategy) Name() string { return s.name }
func (s *snapStrategy) Validate(snap *config.Snapshot) error {
	ps := snap.Provider(s.name)
	if !ps.Enabled || ps.ClientID == "" || ps.ClientSecret == "" {
		return errors.New("provider not configured")
	}
	return nil
}
func (s *snapStrategy) Routes() []Route { return nil }
