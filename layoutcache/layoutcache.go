// Package layoutcache holds the one piece of process-wide mutable state
// this module has (spec.md §5, §9 "Global mutable state"): a bounded LRU of
// published, immutable layout.Index values keyed by (chainId, address,
// codeHash). Publication is once-only, so concurrent analyses can safely
// share entries without locking beyond the LRU's own.
package layoutcache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
)

// Key identifies one cached layout.Index. codeHash is included so a
// contract that self-destructs and is redeployed with different code at
// the same address invalidates cleanly (spec.md §5).
type Key struct {
	ChainID  uint64
	Address  evmcommon.Address
	CodeHash evmcommon.Hash
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%s/%s", k.ChainID, k.Address.Hex(), k.CodeHash.Hex())
}

// Cache is a bounded, concurrency-safe LRU of *layout.Index. The zero value
// is not usable; construct with New. A Cache with size 0 is a deterministic
// no-op — every Get misses and every Publish is discarded — the opt-out
// spec.md §9 asks for so tests can run without cross-test cache leakage.
type Cache struct {
	inner *lru.Cache[Key, *layout.Index]
	size  int
}

// New builds a Cache holding at most size entries. size <= 0 disables
// caching (Get always misses).
func New(size int) (*Cache, error) {
	if size <= 0 {
		return &Cache{size: 0}, nil
	}
	inner, err := lru.New[Key, *layout.Index](size)
	if err != nil {
		return nil, fmt.Errorf("layoutcache: %w", err)
	}
	return &Cache{inner: inner, size: size}, nil
}

// Get returns the cached Index for key, if any.
func (c *Cache) Get(key Key) (*layout.Index, bool) {
	if c == nil || c.size == 0 {
		return nil, false
	}
	return c.inner.Get(key)
}

// Publish stores idx under key. Entries are immutable once published: the
// first Publish for a key wins, and a later Publish for a key that is still
// cached is ignored (spec.md §5 "immutable for the duration of an analysis").
func (c *Cache) Publish(key Key, idx *layout.Index) {
	if c == nil || c.size == 0 {
		return
	}
	c.inner.ContainsOrAdd(key, idx)
}

// Len reports the number of entries currently cached.
func (c *Cache) Len() int {
	if c == nil || c.size == 0 {
		return 0
	}
	return c.inner.Len()
}
