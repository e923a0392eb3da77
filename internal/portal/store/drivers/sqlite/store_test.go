package sqlite_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
	"github.com/estatevault/portal/internal/portal/store/drivers/sqlite"
	"github.com/estatevault/portal/pkg/idx"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newStore(t *testing.T) (*sqlite.Store, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}

	s, err := sqlite.NewStore(":memory:", sqlite.WithClock(clk.Now))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.ApplyMigrations(), "migrations must be idempotent")
	return s, clk
}

func createUser(t *testing.T, s store.Store, username string, role domain.Role) domain.User {
	t.Helper()
	hash := "$argon2id$dummy"
	u := domain.User{
		ID:           idx.New().String(),
		Email:        username + "@example.com",
		Username:     username,
		PasswordHash: &hash,
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	empty, err := s.Users().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	alice := createUser(t, s, "alice", domain.RoleClient)

	t.Run("lookups", func(t *testing.T) {
		byID, err := s.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)
		require.Equal(t, domain.RoleClient, byID.Role)
		require.Equal(t, domain.TwoFactorDisabled, byID.TwoFactorState)
		require.Nil(t, byID.TwoFactorSecret)
		require.True(t, byID.IsActive)

		byName, err := s.Users().GetUserByUsername(ctx, "ALICE")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byName.ID)

		byEmail, err := s.Users().GetUserByEmail(ctx, "Alice@Example.com")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byEmail.ID)

		_, err = s.Users().GetUserByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("duplicate email", func(t *testing.T) {
		dup := alice
		dup.ID = idx.New().String()
		dup.Username = "alice2"
		require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("update patch", func(t *testing.T) {
		inactive := false
		require.NoError(t, s.Users().UpdateUser(ctx, alice.ID, domain.UserPatch{IsActive: &inactive}))

		u, err := s.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.False(t, u.IsActive)
		require.Equal(t, "alice", u.Username)

		var noPassword *string
		require.NoError(t, s.Users().UpdateUser(ctx, alice.ID, domain.UserPatch{PasswordHash: &noPassword}))
		u, err = s.Users().GetUserByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Nil(t, u.PasswordHash)

		require.ErrorIs(t, s.Users().UpdateUser(ctx, "missing", domain.UserPatch{}), store.ErrNotFound)
	})
}

func TestListUsersByRole(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)

	a1 := createUser(t, s, "admin1", domain.RoleAdmin)
	clk.Advance(time.Second)
	a2 := createUser(t, s, "admin2", domain.RoleAdmin)
	createUser(t, s, "client", domain.RoleClient)
	gone := createUser(t, s, "admin3", domain.RoleAdmin)

	inactive := false
	require.NoError(t, s.Users().UpdateUser(ctx, gone.ID, domain.UserPatch{IsActive: &inactive}))

	admins, err := s.Users().ListUsersByRole(ctx, domain.RoleAdmin)
	require.NoError(t, err)
	require.Len(t, admins, 2)
	require.Equal(t, a1.ID, admins[0].ID)
	require.Equal(t, a2.ID, admins[1].ID)

	support, err := s.Users().ListUsersByRole(ctx, domain.RoleSupport)
	require.NoError(t, err)
	require.Empty(t, support)
}

func TestTwoFactorTransitions(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	u := createUser(t, s, "bob", domain.RoleClient)
	users := s.Users()

	require.ErrorIs(t, users.EnableTwoFactor(ctx, u.ID, "SECRET1"), store.ErrConflict, "cannot enable without begin")

	require.NoError(t, users.BeginTwoFactor(ctx, u.ID, "SECRET1"))
	got, err := users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TwoFactorPending, got.TwoFactorState)
	require.Equal(t, "SECRET1", *got.TwoFactorSecret)

	// Restarting setup replaces the pending secret.
	require.NoError(t, users.BeginTwoFactor(ctx, u.ID, "SECRET2"))
	require.ErrorIs(t, users.EnableTwoFactor(ctx, u.ID, "SECRET1"), store.ErrConflict, "stale secret")
	require.NoError(t, users.EnableTwoFactor(ctx, u.ID, "SECRET2"))

	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, got.TwoFactorEnabled())

	require.ErrorIs(t, users.BeginTwoFactor(ctx, u.ID, "SECRET3"), store.ErrConflict, "re-enroll while enabled")

	require.NoError(t, users.DisableTwoFactor(ctx, u.ID))
	got, err = users.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TwoFactorDisabled, got.TwoFactorState)
	require.Nil(t, got.TwoFactorSecret)

	require.ErrorIs(t, users.BeginTwoFactor(ctx, "missing", "S"), store.ErrNotFound)
	require.ErrorIs(t, users.DisableTwoFactor(ctx, "missing"), store.ErrNotFound)
}

func TestTwoFactorSchemaRejectsEnabledWithoutSecret(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)

	u := domain.User{
		ID:             idx.New().String(),
		Email:          "x@example.com",
		Username:       "x",
		Role:           domain.RoleClient,
		IsActive:       true,
		TwoFactorState: domain.TwoFactorEnabled,
	}
	err := s.Users().CreateUser(ctx, u)
	require.ErrorIs(t, err, store.ErrUnavailable)
}

func TestBackupCodes(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	u := createUser(t, s, "carol", domain.RoleClient)
	codes := s.BackupCodes()

	require.NoError(t, codes.ReplaceBackupCodes(ctx, u.ID, []string{"h3", "h1", "h2"}))
	list, err := codes.ListBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"h3", "h1", "h2"}, list, "issue order is kept")

	ok, err := codes.ConsumeBackupCode(ctx, u.ID, "h1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = codes.ConsumeBackupCode(ctx, u.ID, "h1")
	require.NoError(t, err)
	require.False(t, ok, "a consumed code is gone")

	n, err := codes.CountBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	require.NoError(t, codes.ReplaceBackupCodes(ctx, u.ID, []string{"n1"}))
	list, err = codes.ListBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"n1"}, list)

	require.NoError(t, codes.DeleteAllBackupCodes(ctx, u.ID))
	n, err = codes.CountBackupCodes(ctx, u.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestConsumeBackupCodeConcurrently(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	u := createUser(t, s, "dave", domain.RoleClient)
	require.NoError(t, s.BackupCodes().ReplaceBackupCodes(ctx, u.ID, []string{"same"}))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.BackupCodes().ConsumeBackupCode(ctx, u.ID, "same")
			if err == nil && ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	require.Equal(t, 1, wins)
}

func TestMessages(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	client := createUser(t, s, "erin", domain.RoleClient)
	admin := createUser(t, s, "frank", domain.RoleAdmin)

	direct := domain.ChatMessage{
		ID:          idx.New().String(),
		SenderID:    client.ID,
		RecipientID: &admin.ID,
		Content:     "hello",
		CreatedAt:   clk.Now(),
	}
	broadcast := domain.ChatMessage{
		ID:        idx.New().String(),
		SenderID:  client.ID,
		Content:   "anyone?",
		CreatedAt: clk.Now(),
	}
	require.NoError(t, s.Messages().CreateMessage(ctx, direct))
	require.NoError(t, s.Messages().CreateMessage(ctx, broadcast))

	got, err := s.Messages().GetMessage(ctx, direct.ID)
	require.NoError(t, err)
	require.Equal(t, admin.ID, *got.RecipientID)
	require.False(t, got.IsRead)
	require.Nil(t, got.ReadAt)
	require.True(t, got.CreatedAt.Equal(clk.Now()))

	got, err = s.Messages().GetMessage(ctx, broadcast.ID)
	require.NoError(t, err)
	require.True(t, got.Broadcast())

	ok, err := s.Messages().MarkMessageRead(ctx, direct.ID, clk.Now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Messages().MarkMessageRead(ctx, direct.ID, clk.Now())
	require.NoError(t, err)
	require.False(t, ok)

	got, err = s.Messages().GetMessage(ctx, direct.ID)
	require.NoError(t, err)
	require.True(t, got.IsRead)
	require.NotNil(t, got.ReadAt)

	_, err = s.Messages().GetMessage(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCorrespondents(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	admin := createUser(t, s, "grace", domain.RoleAdmin)
	direct := createUser(t, s, "hank", domain.RoleClient)
	broadcaster := createUser(t, s, "iris", domain.RoleClient)
	addressed := createUser(t, s, "jo", domain.RoleClient)
	createUser(t, s, "kai", domain.RoleClient)
	other := createUser(t, s, "lee", domain.RoleAdmin)

	send := func(from string, to *string) {
		require.NoError(t, s.Messages().CreateMessage(ctx, domain.ChatMessage{
			ID:          idx.New().String(),
			SenderID:    from,
			RecipientID: to,
			Content:     "hi",
			CreatedAt:   clk.Now(),
		}))
	}
	send(direct.ID, &admin.ID)
	send(direct.ID, &admin.ID)
	send(broadcaster.ID, nil)
	send(admin.ID, &addressed.ID)
	send(admin.ID, nil)
	send(other.ID, &direct.ID)

	ids, err := s.Messages().ListCorrespondents(ctx, admin.ID)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{direct.ID, broadcaster.ID, addressed.ID}, ids)
}

func TestRefreshSessions(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	u := createUser(t, s, "gina", domain.RoleClient)
	sessions := s.RefreshSessions()

	require.NoError(t, sessions.CreateRefreshSession(ctx, domain.RefreshSession{
		TokenHash: "a", UserID: u.ID, ExpiresAt: clk.Now().Add(time.Hour),
	}))
	require.NoError(t, sessions.CreateRefreshSession(ctx, domain.RefreshSession{
		TokenHash: "b", UserID: u.ID, ExpiresAt: clk.Now().Add(2 * time.Hour),
	}))

	ok, err := sessions.RevokeRefreshSession(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = sessions.RevokeRefreshSession(ctx, "a")
	require.NoError(t, err)
	require.False(t, ok, "only one revoke wins")

	got, err := sessions.GetRefreshSession(ctx, "a")
	require.NoError(t, err)
	require.True(t, got.Revoked)

	n, err := sessions.RevokeAllUserRefreshSessions(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	clk.Advance(90 * time.Minute)
	deleted, err := sessions.DeleteExpiredRefreshSessions(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = sessions.GetRefreshSession(ctx, "a")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRevokeExpiredRefreshSessionFails(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	u := createUser(t, s, "hank", domain.RoleClient)

	require.NoError(t, s.RefreshSessions().CreateRefreshSession(ctx, domain.RefreshSession{
		TokenHash: "old", UserID: u.ID, ExpiresAt: clk.Now().Add(time.Minute),
	}))
	clk.Advance(2 * time.Minute)

	ok, err := s.RefreshSessions().RevokeRefreshSession(ctx, "old")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoginChallenges(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	u := createUser(t, s, "ivy", domain.RoleClient)
	challenges := s.LoginChallenges()

	c := domain.LoginChallenge{ID: idx.New().String(), UserID: u.ID, ExpiresAt: clk.Now().Add(5 * time.Minute)}
	require.NoError(t, challenges.CreateLoginChallenge(ctx, c))

	got, err := challenges.GetLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.Zero(t, got.Attempts)

	got, err = challenges.IncrementLoginChallengeAttempts(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Attempts)
	got, err = challenges.IncrementLoginChallengeAttempts(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Attempts)

	ok, err := challenges.ConsumeLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = challenges.ConsumeLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = challenges.GetLoginChallenge(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestLoginChallengeExpiry(t *testing.T) {
	ctx := context.Background()
	s, clk := newStore(t)
	u := createUser(t, s, "jack", domain.RoleClient)
	challenges := s.LoginChallenges()

	c := domain.LoginChallenge{ID: idx.New().String(), UserID: u.ID, ExpiresAt: clk.Now().Add(time.Minute)}
	require.NoError(t, challenges.CreateLoginChallenge(ctx, c))
	clk.Advance(time.Minute)

	_, err := challenges.GetLoginChallenge(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = challenges.IncrementLoginChallengeAttempts(ctx, c.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	ok, err := challenges.ConsumeLoginChallenge(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := challenges.DeleteExpiredLoginChallenges(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s, _ := newStore(t)
	u := createUser(t, s, "kate", domain.RoleClient)

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().BeginTwoFactor(ctx, u.ID, "S"); err != nil {
			return err
		}
		return store.ErrConflict
	})
	require.ErrorIs(t, err, store.ErrConflict)

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TwoFactorDisabled, got.TwoFactorState)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().BeginTwoFactor(ctx, u.ID, "S")
	}))
	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TwoFactorPending, got.TwoFactorState)

	require.NoError(t, s.Ping(ctx))
}
