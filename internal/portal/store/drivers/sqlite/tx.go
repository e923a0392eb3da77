package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/estatevault/portal/internal/portal/store"
)

type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func newTx(tx *sql.Tx, now func() time.Time) *txStore {
	return &txStore{tx: tx, now: now}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

// Close is a no-op; the caller commits or rolls back and the DB stays open.
func (t *txStore) Close() error { return nil }

// Ping is a no-op; the connection is already held by the transaction.
func (t *txStore) Ping(ctx context.Context) error { return nil }

// Nested transactions are not supported.
func (t *txStore) Tx(ctx context.Context) (store.Tx, error) { return nil, sql.ErrTxDone }

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil }

func (t *txStore) Users() store.Users             { return &usersRepo{db: t.tx, now: t.now} }
func (t *txStore) BackupCodes() store.BackupCodes { return &backupCodesRepo{db: t.tx} }
func (t *txStore) Messages() store.Messages       { return &messagesRepo{db: t.tx} }
func (t *txStore) RefreshSessions() store.RefreshSessions {
	return &refreshSessionsRepo{db: t.tx, now: t.now}
}
func (t *txStore) LoginChallenges() store.LoginChallenges {
	return &loginChallengesRepo{db: t.tx, now: t.now}
}
