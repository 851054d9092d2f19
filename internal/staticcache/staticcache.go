// Package staticcache persists immutable contract read results per chain.
// Only a closed set of static view methods is ever cached; entries survive
// restarts via an atomically-written JSON file.
package staticcache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fd1az/market-data-engine/internal/apperror"
	"github.com/fd1az/market-data-engine/internal/bignum"
	"github.com/fd1az/market-data-engine/internal/logger"
)

// cacheableMethods is the closed set of static methods eligible for caching.
var cacheableMethods = map[string]struct{}{
	"name":        {},
	"symbol":      {},
	"decimals":    {},
	"token0":      {},
	"token1":      {},
	"fee":         {},
	"tickSpacing": {},
	"getPair":     {},
	"getPool":     {},
	"factory":     {},
	"router":      {},
}

// entry is one cached value with its write timestamp.
type entry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"`
}

// fileLayout is the on-disk shape of the cache.
type fileLayout struct {
	ChainID   uint64           `json:"chainId"`
	CreatedAt int64            `json:"createdAt"`
	UpdatedAt int64            `json:"updatedAt"`
	Entries   map[string]entry `json:"entries"`
}

// Cache is a per-chain static contract-read cache.
type Cache struct {
	chainID   uint64
	path      string
	log       logger.LoggerInterface
	mu        sync.RWMutex
	entries   map[string]entry
	createdAt int64
	dirty     bool
}

// Open loads or creates the cache file for a chain inside dir.
func Open(dir string, chainID uint64, log logger.LoggerInterface) (*Cache, error) {
	c := &Cache{
		chainID:   chainID,
		path:      filepath.Join(dir, fmt.Sprintf("static-cache-%d.json", chainID)),
		log:       log,
		entries:   make(map[string]entry),
		createdAt: time.Now().UnixMilli(),
	}

	raw, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, apperror.New(apperror.CodeCacheCorrupted,
			apperror.WithCause(err),
			apperror.WithContext("read "+c.path))
	}

	var layout fileLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		// A corrupt cache is not fatal; start fresh and overwrite on flush.
		log.Warn(context.Background(), "static cache corrupted, starting fresh",
			"path", c.path, "error", err)
		return c, nil
	}

	c.entries = layout.Entries
	if c.entries == nil {
		c.entries = make(map[string]entry)
	}
	if layout.CreatedAt != 0 {
		c.createdAt = layout.CreatedAt
	}
	return c, nil
}

// Key builds the canonical cache key for a contract method call.
// args must already be JSON-encodable; big integers go through bignum.
func Key(address, method string, args ...any) string {
	encoded := make([]any, len(args))
	for i, a := range args {
		encoded[i] = bignum.EncodeValue(a)
	}
	argsJSON, _ := json.Marshal(encoded)
	return fmt.Sprintf("contract:%s:%s:%s", strings.ToLower(address), method, argsJSON)
}

// Cacheable reports whether the method belongs to the closed static set.
func Cacheable(method string) bool {
	_, ok := cacheableMethods[method]
	return ok
}

// Get returns the decoded value for key, if present.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	var v any
	if err := json.Unmarshal(e.Value, &v); err != nil {
		return nil, false
	}
	return bignum.DecodeValue(v), true
}

// Put stores a value under key. Methods outside the closed set are ignored.
func (c *Cache) Put(key string, value any) {
	// Key layout is contract:<address>:<method>:<args>.
	if parts := strings.SplitN(key, ":", 4); len(parts) < 3 || !Cacheable(parts[2]) {
		return
	}

	raw, err := json.Marshal(bignum.EncodeValue(value))
	if err != nil {
		return
	}

	c.mu.Lock()
	c.entries[key] = entry{Value: raw, Timestamp: time.Now().UnixMilli()}
	c.dirty = true
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush writes the cache to disk atomically (temp file + rename). A no-op
// when nothing changed since the last flush.
func (c *Cache) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.dirty {
		return nil
	}

	layout := fileLayout{
		ChainID:   c.chainID,
		CreatedAt: c.createdAt,
		UpdatedAt: time.Now().UnixMilli(),
		Entries:   c.entries,
	}
	raw, err := json.MarshalIndent(layout, "", "  ")
	if err != nil {
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}

	tmp, err := os.CreateTemp(filepath.Dir(c.path), ".static-cache-*")
	if err != nil {
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		os.Remove(tmpName)
		return apperror.New(apperror.CodeCacheWriteError, apperror.WithCause(err))
	}

	c.dirty = false
	return nil
}

// Keys returns all cache keys sorted, mainly for diagnostics and tests.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
