package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store/drivers/sqlite"
	"github.com/estatevault/portal/pkg/cryptox"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/estatevault/portal/pkg/jwtx"
	"github.com/estatevault/portal/pkg/totpx"
	"github.com/stretchr/testify/require"
)

const testPassword = "correct horse battery staple"

var testNow = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store     *sqlite.Store
	codec     *jwtx.Codec
	totp      *totpx.Engine
	twoFactor *TwoFactorService
	sessions  *SessionService
	directory *AdminDirectory
	relay     *RelayService
	notifier  *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	codec, err := jwtx.NewCodec(jwtx.Config{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		Issuer:        "estate-portal",
	})
	require.NoError(t, err)

	engine := totpx.New("estate-portal", totpx.DefaultWindow)
	engine.Now = func() time.Time { return testNow }

	f := &fixture{store: st, codec: codec, totp: engine, notifier: newRecorder()}
	f.twoFactor = &TwoFactorService{Store: st, TOTP: engine}
	f.sessions = &SessionService{Store: st, Codec: codec, TwoFactor: f.twoFactor, ChallengeMaxAttempts: 3}
	f.directory = NewAdminDirectory(st.Users(), time.Minute)
	f.relay = &RelayService{Store: st, Directory: f.directory, Notifier: f.notifier}
	return f
}

var (
	hashOnce   sync.Once
	cachedHash string
)

func passwordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := cryptox.HashPassword(testPassword)
		require.NoError(t, err)
		cachedHash = h
	})
	return cachedHash
}

func (f *fixture) createUser(t *testing.T, username string, role domain.Role) domain.User {
	t.Helper()
	hash := passwordHash(t)
	u := domain.User{
		ID:           idx.New().String(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, f.store.Users().CreateUser(context.Background(), u))
	return u
}

// enable2FA runs the enrollment flow and returns the secret and backup codes.
func (f *fixture) enable2FA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	setup, err := f.twoFactor.BeginSetup(ctx, userID)
	require.NoError(t, err)

	code, err := f.totp.Code(setup.Secret, testNow)
	require.NoError(t, err)
	_, err = f.twoFactor.ConfirmSetup(ctx, userID, code, nil)
	require.NoError(t, err)
	return setup.Secret, setup.BackupCodes
}

func (f *fixture) code(t *testing.T, secret string) string {
	t.Helper()
	c, err := f.totp.Code(secret, testNow)
	require.NoError(t, err)
	return c
}

// wrongCode returns a six digit code that is not valid for secret anywhere in
// the drift window.
func (f *fixture) wrongCode(t *testing.T, secret string) string {
	t.Helper()
	for _, candidate := range []string{"000000", "111111", "222222", "333333", "444444", "555555"} {
		if !f.totp.Verify(secret, candidate) {
			return candidate
		}
	}
	t.Fatal("no invalid code found")
	return ""
}

type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	events map[string][]domain.Event
}

func newRecorder() *recorder {
	return &recorder{online: map[string]bool{}, events: map[string][]domain.Event{}}
}

func (r *recorder) connect(userIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.online[id] = true
	}
}

func (r *recorder) SendTo(userID string, ev domain.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[userID] {
		return 0
	}
	r.events[userID] = append(r.events[userID], ev)
	return 1
}

func (r *recorder) eventsFor(userID string) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events[userID]...)
}
