package service

import (
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/starter/internal/api/store/drivers/sqlite"
	"github.com/aussiebroadwan/starter/pkg/cryptox"
	"github.com/aussiebroadwan/starter/pkg/denylist"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func newTestTokenService(t *testing.T, s *sqlite.Store, clock *testClock) *TokenService {
	t.Helper()

	key, err := cryptox.DeriveKey([]byte("test-secret"), cryptox.DeriveHKDF)
	require.NoError(t, err)
	sealer, err := cryptox.NewSealer(key)
	require.NoError(t, err)

	return &TokenService{
		Sealer:        sealer,
		Store:         s,
		Denylist:      denylist.NewMemory().WithClock(clock.Now),
		Issuer:        "starter-test",
		AccessTTL:     DefaultAccessTTL,
		RefreshTTL:    DefaultRefreshTTL,
		RotateRefresh: true,
		Now:           clock.Now,
	}
}
