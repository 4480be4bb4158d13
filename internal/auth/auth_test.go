package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"reporting-gateway/internal/auth"
	"reporting-gateway/internal/cache"
	"reporting-gateway/internal/database"
	"reporting-gateway/internal/models"
	"reporting-gateway/internal/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeClock is a settable time source shared by the services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var testTokenConfig = auth.TokenConfig{
	Issuer:             "reporting-gateway",
	Audience:           "reporting-gateway-clients",
	AccessTokenExpiry:  30 * time.Minute,
	RefreshTokenExpiry: 7 * 24 * time.Hour,
	RefreshTokenLength: 32,
}

func createTestKeyManager(t *testing.T) *auth.KeyManager {
	t.Helper()
	km, err := auth.NewKeyManager(testutil.GenerateTestPEMKey(t))
	if err != nil {
		t.Fatalf("failed to create KeyManager: %v", err)
	}
	return km
}

// seedUser creates an active user with password "s3cret!" and the given grants.
func seedUser(t *testing.T, dir *database.MemoryDirectory, username string, roles []string, whiteLabels []int) int64 {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("s3cret!")
	require.NoError(t, err)

	id, err := dir.CreateUser(ctx, &models.User{
		Username:     username,
		DisplayName:  username + " display",
		PasswordHash: hash,
		Active:       true,
	})
	require.NoError(t, err)
	require.NoError(t, dir.SetRoles(ctx, id, roles))
	require.NoError(t, dir.SetWhiteLabelGrants(ctx, id, whiteLabels))
	return id
}

type fixture struct {
	clock    *fakeClock
	keys     *auth.KeyManager
	store    *cache.MemoryStore
	dir      *database.MemoryDirectory
	verifier *auth.Verifier
	tokens   *auth.TokenService
}

func newFixture(t *testing.T, rehydrate bool) *fixture {
	t.Helper()
	f := &fixture{
		clock: newFakeClock(),
		keys:  createTestKeyManager(t),
		store: cache.NewMemoryStore(),
		dir:   database.NewMemoryDirectory(),
	}
	f.verifier = auth.NewVerifier(f.dir, 5, 15*time.Minute, zap.NewNop(), auth.WithVerifierClock(f.clock.Now))

	opts := []auth.TokenOption{auth.WithClock(f.clock.Now)}
	if rehydrate {
		opts = append(opts, auth.WithPrincipalLoader(f.verifier))
	}
	f.tokens = auth.NewTokenService(f.keys, f.store, testTokenConfig, zap.NewNop(), opts...)
	return f
}
