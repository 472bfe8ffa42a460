package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Cache is the read-path response cache. Keys carry the project scope they
// were computed for so a write to a project can invalidate every cached
// response that might now be stale.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key, projectID string, value []byte)
	InvalidateProject(ctx context.Context, projectID string) int
	Stats() Stats
	Close() error
}

// Stats tracks cache performance
type Stats struct {
	Hits         int64 `json:"hits"`
	Misses       int64 `json:"misses"`
	Evictions    int64 `json:"evictions"`
	TotalEntries int64 `json:"total_entries"`
}

// GenerateKey creates a cache key from a request kind and its parameters.
func GenerateKey(kind string, request interface{}) (string, error) {
	reqBytes, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	hasher := sha256.New()
	hasher.Write([]byte(kind))
	hasher.Write([]byte(":"))
	hasher.Write(reqBytes)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

type memoryEntry struct {
	value     []byte
	projectID string
	expiresAt time.Time
}

// MemoryCache is the in-process backend used when no Redis is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	stats   Stats
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache with the given entry TTL. A
// background sweep drops expired entries once per TTL interval.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	return entry.value, true
}

func (c *MemoryCache) Set(_ context.Context, key, projectID string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &memoryEntry{
		value:     value,
		projectID: projectID,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.stats.TotalEntries = int64(len(c.entries))
}

// InvalidateProject drops every entry cached for the project, plus any
// cross-project entries, since those can reflect the project's data too.
func (c *MemoryCache) InvalidateProject(_ context.Context, projectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.projectID == projectID || entry.projectID == "all" {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	c.stats.TotalEntries = int64(len(c.entries))
	return removed
}

func (c *MemoryCache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.entries {
				if now.After(entry.expiresAt) {
					delete(c.entries, key)
					c.stats.Evictions++
				}
			}
			c.stats.TotalEntries = int64(len(c.entries))
			c.mu.Unlock()
		}
	}
}
