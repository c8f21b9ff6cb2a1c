package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/pii"
)

// ResultCache stores definitive registry answers.
type ResultCache interface {
	Get(ctx context.Context, nik string) (models.RegistryResult, bool)
	Put(ctx context.Context, result models.RegistryResult) error
}

// CachedVerifier serves repeated lookups from cache. ERROR and INVALID_FORMAT
// results are never cached, so an outage is retried on the next verification.
type CachedVerifier struct {
	next  Verifier
	cache ResultCache
}

func NewCachedVerifier(next Verifier, cache ResultCache) *CachedVerifier {
	return &CachedVerifier{next: next, cache: cache}
}

func (v *CachedVerifier) Verify(ctx context.Context, nik string) models.RegistryResult {
	if r, ok := v.cache.Get(ctx, nik); ok {
		return r
	}
	r := v.next.Verify(ctx, nik)
	if cacheable(r) {
		_ = v.cache.Put(ctx, r)
	}
	return r
}

func cacheable(r models.RegistryResult) bool {
	return r.Status != models.RegistryError && r.Status != models.RegistryInvalidFormat
}

type cachedResult struct {
	result   models.RegistryResult
	storedAt time.Time
}

// MemoryCache is a TTL cache keyed by NIK.
type MemoryCache struct {
	mu      sync.RWMutex
	results map[string]cachedResult
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{results: make(map[string]cachedResult), ttl: ttl, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, nik string) (models.RegistryResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cached, ok := c.results[nik]; ok && c.now().Sub(cached.storedAt) < c.ttl {
		return cached.result, true
	}
	return models.RegistryResult{}, false
}

func (c *MemoryCache) Put(_ context.Context, r models.RegistryResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[r.IDNumber] = cachedResult{result: r, storedAt: c.now()}
	return nil
}

// RedisCache shares answers across replicas. Keys are keyed hashes of the NIK.
type RedisCache struct {
	client *redis.Client
	hasher *pii.Hasher
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, hasher *pii.Hasher, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, hasher: hasher, ttl: ttl}
}

func (c *RedisCache) key(nik string) string {
	return "registry:result:" + c.hasher.Hash(nik)
}

func (c *RedisCache) Get(ctx context.Context, nik string) (models.RegistryResult, bool) {
	raw, err := c.client.Get(ctx, c.key(nik)).Bytes()
	if err != nil {
		return models.RegistryResult{}, false
	}
	var r models.RegistryResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.RegistryResult{}, false
	}
	return r, true
}

func (c *RedisCache) Put(ctx context.Context, r models.RegistryResult) error {
	if r.IDNumber == "" {
		return errors.New("registry result without id number")
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(r.IDNumber), raw, c.ttl).Err()
}
