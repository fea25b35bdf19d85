package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ZZSZ-YCT/customSystem/internal/infrastructure/database"
	_ "github.com/ZZSZ-YCT/customSystem/migrations"
)

const (
	testSecret   = "test-secret-key-for-jwt-signing-0123456789"
	testPassword = "test-password"
)

// testDB creates a temporary SQLite database with the embedded schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(t.Context()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

var testClockEpoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable time source shared by issuer and session manager.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testClockEpoch}
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

func newTestIssuer(t testing.TB, clock *testClock) *TokenIssuer {
	t.Helper()

	var opts []IssuerOption
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	issuer, err := NewTokenIssuer(IssuerConfig{Secret: testSecret}, opts...)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}
	return issuer
}

// seedIdentity stores an identity with password testPassword and a fresh TOTP secret.
func seedIdentity(t testing.TB, store IdentityStore, username string, role Role, perms ...string) *Identity {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	secret, err := GenerateTOTPSecret(DefaultTOTPSecretLength)
	if err != nil {
		t.Fatalf("generating totp secret: %v", err)
	}

	identity := &Identity{
		Username:     username,
		DisplayName:  username,
		Role:         role,
		Permissions:  perms,
		PasswordHash: hash,
		TOTPSecret:   secret,
	}
	if err := store.Create(t.Context(), identity); err != nil {
		t.Fatalf("creating test identity %s: %v", username, err)
	}
	return identity
}

// eventLog captures recorded events for assertions.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Record(_ context.Context, e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}
