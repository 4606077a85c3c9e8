package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yaqith/yaqith/pkg/classify"
)

// DefaultCacheTTL keeps verdicts fresh enough that pattern or corpus
// updates propagate quickly.
const DefaultCacheTTL = 5 * time.Minute

// VerdictCache memoizes classifier results in Redis. It is strictly
// best-effort: cache failures never fail a scan, they just cost a
// re-classification.
type VerdictCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewVerdictCache connects to Redis and verifies it responds. Returns nil
// (cache disabled) when addr is empty or the server is unreachable.
func NewVerdictCache(addr string, ttl time.Duration) *VerdictCache {
	if addr == "" {
		log.Println("○ Verdict cache disabled (no Redis address)")
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("○ Verdict cache disabled (Redis unreachable: %v)", err)
		_ = client.Close()
		return nil
	}

	log.Printf("✓ Verdict cache connected (%s, TTL %s)", addr, ttl)
	return &VerdictCache{client: client, ttl: ttl}
}

// NewVerdictCacheWithClient wraps an existing client. Used by tests.
func NewVerdictCacheWithClient(client *redis.Client, ttl time.Duration) *VerdictCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &VerdictCache{client: client, ttl: ttl}
}

func cacheKey(modality classify.Modality, input string) string {
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf("yaqith:verdict:%s:%s", modality, hex.EncodeToString(sum[:]))
}

// Get returns a cached verdict, or ok=false on miss or any Redis error.
func (c *VerdictCache) Get(ctx context.Context, modality classify.Modality, input string) (classify.Result, bool) {
	if c == nil {
		return classify.Result{}, false
	}

	raw, err := c.client.Get(ctx, cacheKey(modality, input)).Bytes()
	if err != nil {
		return classify.Result{}, false
	}

	var result classify.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return classify.Result{}, false
	}
	return result, true
}

// Put stores a verdict with the configured TTL. Errors are swallowed.
func (c *VerdictCache) Put(ctx context.Context, modality classify.Modality, input string, result classify.Result) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, cacheKey(modality, input), raw, c.ttl).Err()
}

// Close releases the Redis connection. Safe on a nil cache.
func (c *VerdictCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
