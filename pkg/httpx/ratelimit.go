package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/estatevault/portal/pkg/slogx"
)

// Limit is a token bucket profile: Requests per Window, refilled
// continuously, with up to Burst spent at once.
type Limit struct {
	Name     string
	Requests int
	Window   time.Duration
	Burst    int
}

func (l Limit) perSecond() rate.Limit {
	return rate.Limit(float64(l.Requests) / l.Window.Seconds())
}

// Portal profiles, each overridable with RATELIMIT_<NAME>_REQUESTS,
// RATELIMIT_<NAME>_WINDOW_SEC and RATELIMIT_<NAME>_BURST.
var (
	// StrictLimit guards password and second factor checks.
	StrictLimit = Limit{Name: "strict", Requests: 5, Window: time.Minute, Burst: 5}
	// ModerateLimit covers refresh, logout, 2FA setup and messaging.
	ModerateLimit = Limit{Name: "moderate", Requests: 20, Window: time.Minute, Burst: 20}
	// LenientLimit covers status reads and realtime upgrades.
	LenientLimit = Limit{Name: "lenient", Requests: 100, Window: time.Minute, Burst: 100}
	// PublicLimit covers probes, metrics and docs.
	PublicLimit = Limit{Name: "public", Requests: 1000, Window: time.Minute, Burst: 1000}
)

func init() {
	for _, l := range []*Limit{&StrictLimit, &ModerateLimit, &LenientLimit, &PublicLimit} {
		*l = LimitFromEnv(*l)
	}
}

// LimitFromEnv applies any RATELIMIT_<NAME>_* overrides to l. Values that
// are not positive integers are ignored.
func LimitFromEnv(l Limit) Limit {
	prefix := "RATELIMIT_" + strings.ToUpper(l.Name) + "_"
	if n, ok := positiveEnv(prefix + "REQUESTS"); ok {
		l.Requests = n
	}
	if n, ok := positiveEnv(prefix + "WINDOW_SEC"); ok {
		l.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv(prefix + "BURST"); ok {
		l.Burst = n
	}
	return l
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// KeyFunc picks the bucket a request is charged to. An empty key exempts
// the request.
type KeyFunc func(*http.Request) string

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserKey returns the authenticated user ID, or "" before authentication.
func UserKey(r *http.Request) string {
	return UserIDFromContext(r.Context())
}

// JoinKeys concatenates the non-empty results of keys with sep.
func JoinKeys(sep string, keys ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if v := k(r); v != "" {
				parts = append(parts, v)
			}
		}
		return strings.Join(parts, sep)
	}
}

// JSONField keys on a top-level string field of a JSON body, lower-cased and
// trimmed. The body is restored for the handler.
func JSONField(name string) KeyFunc {
	return func(r *http.Request) string {
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes))
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}

		var fields map[string]json.RawMessage
		if json.Unmarshal(body, &fields) != nil {
			return ""
		}
		var v string
		if json.Unmarshal(fields[name], &v) != nil {
			return ""
		}
		return strings.ToLower(strings.TrimSpace(v))
	}
}

// bucketIdle is how long an untouched bucket is kept. After this long it
// would have refilled anyway for every portal profile.
const bucketIdle = 10 * time.Minute

type buckets struct {
	limit rate.Limit
	burst int
	cache *cache.Cache
}

func newBuckets(l Limit) *buckets {
	idle := max(bucketIdle, l.Window)
	return &buckets{
		limit: l.perSecond(),
		burst: l.Burst,
		cache: cache.New(idle, idle/2),
	}
}

func (b *buckets) get(key string) *rate.Limiter {
	if v, ok := b.cache.Get(key); ok {
		b.cache.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(b.limit, b.burst)
	if b.cache.Add(key, lim, cache.DefaultExpiration) != nil {
		// Lost the race to another request for the same key.
		if v, ok := b.cache.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// RateLimitRejected, if set, is called with the profile name each time a
// request is refused.
var RateLimitRejected func(name string)

// RateLimit charges each request to the bucket named by key and answers
// 429 with Retry-After once the bucket is empty. Every call builds its own
// set of buckets, so routes sharing a profile do not share budget.
func RateLimit(l Limit, key KeyFunc) Middleware {
	b := newBuckets(l)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				slogx.FromContext(r.Context()).Warn("rate limit key empty, request not charged",
					"profile", l.Name,
				)
				next.ServeHTTP(w, r)
				return
			}

			res := b.get(k).Reserve()
			delay := res.Delay()
			if delay == 0 {
				next.ServeHTTP(w, r)
				return
			}
			res.Cancel()

			retryAfter := max(int(math.Ceil(delay.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Requests))
			w.Header().Set("X-RateLimit-Window", l.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"profile", l.Name,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			if RateLimitRejected != nil {
				RateLimitRejected(l.Name)
			}
			ErrRateLimited.WriteError(w)
		})
	}
}

// LimitByIP charges requests to the client address.
func LimitByIP(l Limit) Middleware {
	return RateLimit(l, ClientIP)
}

// LimitByUser charges requests to the authenticated user on each address.
func LimitByUser(l Limit) Middleware {
	return RateLimit(l, JoinKeys(":", UserKey, ClientIP))
}

// LimitByIPAndField charges requests to the client address plus a JSON body
// field, so guessing against one account from one address is capped without
// locking that account out for everyone else.
func LimitByIPAndField(l Limit, field string) Middleware {
	return RateLimit(l, JoinKeys(":", ClientIP, JSONField(field)))
}
