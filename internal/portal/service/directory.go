package service

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/estatevault/portal/internal/portal/domain"
	"github.com/estatevault/portal/internal/portal/store"
)

const DefaultAdminCacheTTL = 30 * time.Second

// AdminDirectory resolves the broadcast audience (active admins). Results
// are cached briefly and concurrent misses share one store query.
type AdminDirectory struct {
	users store.Users
	cache *gocache.Cache
	sf    singleflight.Group
}

func NewAdminDirectory(users store.Users, ttl time.Duration) *AdminDirectory {
	if ttl <= 0 {
		ttl = DefaultAdminCacheTTL
	}
	return &AdminDirectory{users: users, cache: gocache.New(ttl, 2*ttl)}
}

// Admins returns the ids of all active admins.
func (d *AdminDirectory) Admins(ctx context.Context) ([]string, error) {
	key := string(domain.RoleAdmin)
	if v, ok := d.cache.Get(key); ok {
		return v.([]string), nil
	}

	v, err, _ := d.sf.Do(key, func() (any, error) {
		users, err := d.users.ListUsersByRole(ctx, domain.RoleAdmin)
		if err != nil {
			return nil, storeErr("list admins", err)
		}
		ids := make([]string, len(users))
		for i, u := range users {
			ids[i] = u.ID
		}
		d.cache.SetDefault(key, ids)
		return ids, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// Invalidate drops the cached list, e.g. after an admin is created.
func (d *AdminDirectory) Invalidate() {
	d.cache.Flush()
}
