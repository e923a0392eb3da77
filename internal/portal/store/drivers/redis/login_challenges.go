// Package redis keeps pending second-factor logins in redis so that several
// portal instances can share them.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
)

const (
	DefaultKeyPrefix = "portal:lc"

	recordVersion = 1
	maxRetries    = 4
)

type record struct {
	V         int    `json:"v"`
	UserID    string `json:"uid"`
	Attempts  int    `json:"att"`
	ExpiresAt int64  `json:"exp"`
	CreatedAt int64  `json:"cat"`
}

// LoginChallenges implements store.LoginChallenges on a redis client.
// Expiry is enforced twice: by the key TTL and by the stored deadline, so a
// skewed clock never revives a challenge.
type LoginChallenges struct {
	rdb    goredis.UniversalClient
	prefix string
	now    func() time.Time
}

type Option func(*LoginChallenges)

func WithKeyPrefix(prefix string) Option {
	return func(l *LoginChallenges) { l.prefix = prefix }
}

func WithClock(now func() time.Time) Option {
	return func(l *LoginChallenges) { l.now = now }
}

var _ store.LoginChallenges = (*LoginChallenges)(nil)

func NewLoginChallenges(rdb goredis.UniversalClient, opts ...Option) *LoginChallenges {
	l := &LoginChallenges{rdb: rdb, prefix: DefaultKeyPrefix, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Ping checks the redis connection.
func (l *LoginChallenges) Ping(ctx context.Context) error {
	if err := l.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (l *LoginChallenges) key(id string) string {
	return l.prefix + ":" + id
}

func (l *LoginChallenges) CreateLoginChallenge(ctx context.Context, c domain.LoginChallenge) error {
	ttl := c.ExpiresAt.Sub(l.now())
	if ttl <= 0 {
		return fmt.Errorf("%w: challenge already expired", store.ErrConflict)
	}

	created := c.CreatedAt
	if created.IsZero() {
		created = l.now()
	}
	data, err := encode(record{
		V:         recordVersion,
		UserID:    c.UserID,
		Attempts:  c.Attempts,
		ExpiresAt: c.ExpiresAt.UnixMilli(),
		CreatedAt: created.UnixMilli(),
	})
	if err != nil {
		return err
	}

	ok, err := l.rdb.SetNX(ctx, l.key(c.ID), data, ttl).Result()
	if err != nil {
		return mapErr(err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (l *LoginChallenges) GetLoginChallenge(ctx context.Context, id string) (domain.LoginChallenge, error) {
	data, err := l.rdb.Get(ctx, l.key(id)).Bytes()
	if err != nil {
		return domain.LoginChallenge{}, mapErr(err)
	}
	rec, err := decode(data)
	if err != nil {
		return domain.LoginChallenge{}, err
	}
	if l.expired(rec) {
		_ = l.rdb.Del(ctx, l.key(id)).Err()
		return domain.LoginChallenge{}, store.ErrNotFound
	}
	return toDomain(id, rec), nil
}

func (l *LoginChallenges) IncrementLoginChallengeAttempts(ctx context.Context, id string) (domain.LoginChallenge, error) {
	key := l.key(id)

	for range maxRetries {
		var out record
		err := l.rdb.Watch(ctx, func(tx *goredis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec, err := decode(data)
			if err != nil {
				return err
			}

			ttl := time.UnixMilli(rec.ExpiresAt).Sub(l.now())
			if ttl <= 0 {
				_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
					pipe.Del(ctx, key)
					return nil
				})
				if err != nil {
					return err
				}
				return store.ErrNotFound
			}

			rec.Attempts++
			updated, err := encode(rec)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
				pipe.Set(ctx, key, updated, ttl)
				return nil
			})
			out = rec
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return domain.LoginChallenge{}, mapErr(err)
		}
		return toDomain(id, out), nil
	}

	return domain.LoginChallenge{}, fmt.Errorf("%w: too much contention on challenge", store.ErrConflict)
}

func (l *LoginChallenges) ConsumeLoginChallenge(ctx context.Context, id string) (bool, error) {
	data, err := l.rdb.GetDel(ctx, l.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, nil
		}
		return false, mapErr(err)
	}
	rec, err := decode(data)
	if err != nil {
		return false, err
	}
	return !l.expired(rec), nil
}

// DeleteExpiredLoginChallenges is a no-op: redis drops the keys on TTL.
func (l *LoginChallenges) DeleteExpiredLoginChallenges(context.Context) (int64, error) {
	return 0, nil
}

func (l *LoginChallenges) expired(rec record) bool {
	return !l.now().Before(time.UnixMilli(rec.ExpiresAt))
}

func toDomain(id string, rec record) domain.LoginChallenge {
	return domain.LoginChallenge{
		ID:        id,
		UserID:    rec.UserID,
		Attempts:  rec.Attempts,
		ExpiresAt: time.UnixMilli(rec.ExpiresAt).UTC(),
		CreatedAt: time.UnixMilli(rec.CreatedAt).UTC(),
	}
}

func encode(rec record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode login challenge: %w", err)
	}
	return data, nil
}

func decode(data []byte) (record, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return record{}, fmt.Errorf("%w: decode login challenge: %v", store.ErrUnavailable, err)
	}
	if rec.V != recordVersion {
		return record{}, fmt.Errorf("%w: unknown login challenge version %d", store.ErrUnavailable, rec.V)
	}
	return rec, nil
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.Nil), errors.Is(err, store.ErrNotFound):
		return store.ErrNotFound
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
}
