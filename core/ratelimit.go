package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// RatePolicy bounds requests per rolling window for one route class.
type RatePolicy struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Built-in route-class policies. Rate limiting throttles traffic; the
// lockout machinery blocks credential guessing. Both apply at once.
var (
	PolicyGeneral = RatePolicy{Name: "general", Limit: 120, Window: 60 * time.Second}
	PolicyAuth    = RatePolicy{Name: "auth", Limit: 10, Window: 15 * time.Minute}
	PolicyContent = RatePolicy{Name: "content", Limit: 20, Window: 10 * time.Minute}
)

// RatePolicySet is the three policies the router wires, overridable from a
// YAML file.
type RatePolicySet struct {
	General RatePolicy
	Auth    RatePolicy
	Content RatePolicy
}

// DefaultRatePolicies returns the built-in policy set.
func DefaultRatePolicies() RatePolicySet {
	return RatePolicySet{General: PolicyGeneral, Auth: PolicyAuth, Content: PolicyContent}
}

// LoadRatePolicies reads policy overrides from a YAML file. Missing path
// returns the defaults. Zero-valued fields in the file keep their default.
func LoadRatePolicies(path string) (RatePolicySet, error) {
	set := DefaultRatePolicies()
	if path == "" {
		return set, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return set, fmt.Errorf("failed to read rate limit policy file %s: %w", path, err)
	}
	// windows are written as Go duration strings ("15m", "90s")
	type rawPolicy struct {
		Limit  int    `yaml:"limit"`
		Window string `yaml:"window"`
	}
	var overrides struct {
		General *rawPolicy `yaml:"general"`
		Auth    *rawPolicy `yaml:"auth"`
		Content *rawPolicy `yaml:"content"`
	}
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return set, fmt.Errorf("failed to parse rate limit policy file %s: %w", path, err)
	}
	apply := func(dst *RatePolicy, src *rawPolicy) error {
		if src == nil {
			return nil
		}
		if src.Limit > 0 {
			dst.Limit = src.Limit
		}
		if src.Window != "" {
			window, err := time.ParseDuration(src.Window)
			if err != nil {
				return fmt.Errorf("policy %s: bad window %q: %w", dst.Name, src.Window, err)
			}
			if window > 0 {
				dst.Window = window
			}
		}
		return nil
	}
	for _, pair := range []struct {
		dst *RatePolicy
		src *rawPolicy
	}{
		{&set.General, overrides.General},
		{&set.Auth, overrides.Auth},
		{&set.Content, overrides.Content},
	} {
		if err := apply(pair.dst, pair.src); err != nil {
			return set, err
		}
	}
	return set, nil
}

// RateDecision is the outcome of one counter check.
type RateDecision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateCounterStore is the atomic counter contract the governor consumes.
type RateCounterStore interface {
	IncrementAndCheck(ctx context.Context, key string, policy RatePolicy) (RateDecision, error)
}

// RedisRateCounter implements RateCounterStore on Redis. The increment,
// the expiry arming, and the limit check run in one Lua script so
// concurrent requests against the same key never lose counts.
type RedisRateCounter struct {
	client *redis.Client
}

func NewRedisRateCounter(client *redis.Client) *RedisRateCounter {
	return &RedisRateCounter{client: client}
}

// rateCounterScript increments the window counter, arms the TTL on first
// hit, and returns {count, ttl_ms}.
var rateCounterScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

const rateCounterTimeout = 2 * time.Second

func (s *RedisRateCounter) IncrementAndCheck(ctx context.Context, key string, policy RatePolicy) (RateDecision, error) {
	ctx, cancel := context.WithTimeout(ctx, rateCounterTimeout)
	defer cancel()

	redisKey := fmt.Sprintf("ratelimit:%s:%s", policy.Name, key)
	res, err := rateCounterScript.Run(ctx, s.client, []string{redisKey}, policy.Window.Milliseconds()).Result()
	if err != nil {
		return RateDecision{}, err
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) != 2 {
		return RateDecision{}, errors.New("unexpected rate counter response type")
	}
	count, _ := vals[0].(int64)
	ttlMS, _ := vals[1].(int64)

	if count > int64(policy.Limit) {
		retry := time.Duration(ttlMS) * time.Millisecond
		if retry < 0 {
			retry = policy.Window
		}
		return RateDecision{Allowed: false, RetryAfter: retry}, nil
	}
	remaining := policy.Limit - int(count)
	return RateDecision{Allowed: true, Remaining: remaining}, nil
}

// clientKey resolves the counter key for a request: the authenticated
// principal id when a guard already attached one, else the normalized
// client address. IPv4-mapped IPv6 representations collapse to the plain
// IPv4 form so the same client cannot dodge a window by re-encoding its
// address.
func clientKey(c *gin.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return "principal:" + p.ID
	}
	return "ip:" + normalizeAddr(c.ClientIP())
}

func normalizeAddr(addr string) string {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return addr
	}
	return ip.Unmap().String()
}

// RateLimit returns middleware enforcing one policy against the resolved
// client key. A failed counter store fails open: overload protection must
// not turn a Redis outage into a full API outage.
func RateLimit(store RateCounterStore, policy RatePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := store.IncrementAndCheck(c.Request.Context(), clientKey(c), policy)
		if err != nil {
			c.Next()
			return
		}
		if !decision.Allowed {
			retrySeconds := int(decision.RetryAfter.Round(time.Second).Seconds())
			if retrySeconds < 1 {
				retrySeconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(retrySeconds))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": gin.H{
				"code":        "RATE_LIMITED",
				"message":     fmt.Sprintf("too many %s requests", policy.Name),
				"retry_after": retrySeconds,
			}})
			c.Abort()
			return
		}
		c.Next()
	}
}
