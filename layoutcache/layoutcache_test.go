package layoutcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
)

func TestCachePublishAndGet(t *testing.T) {
	c, err := New(2)
	require.NoError(t, err)

	idx, err := layout.Build("0xabc", nil)
	require.NoError(t, err)

	key := Key{ChainID: 1, Address: evmcommon.HexToAddress("0xabc"), CodeHash: evmcommon.HexToHash("0x01")}
	_, ok := c.Get(key)
	require.False(t, ok)

	c.Publish(key, idx)
	got, ok := c.Get(key)
	require.True(t, ok)
	require.Same(t, idx, got)
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := New(1)
	require.NoError(t, err)
	idxA, _ := layout.Build("a", nil)
	idxB, _ := layout.Build("b", nil)

	keyA := Key{ChainID: 1, Address: evmcommon.HexToAddress("0x01")}
	keyB := Key{ChainID: 1, Address: evmcommon.HexToAddress("0x02")}

	c.Publish(keyA, idxA)
	c.Publish(keyB, idxB)

	_, ok := c.Get(keyA)
	require.False(t, ok, "keyA should have been evicted once capacity 1 filled with keyB")

	got, ok := c.Get(keyB)
	require.True(t, ok)
	require.Same(t, idxB, got)
}

func TestZeroSizeCacheIsDeterministicNoOp(t *testing.T) {
	c, err := New(0)
	require.NoError(t, err)
	idx, _ := layout.Build("a", nil)
	key := Key{ChainID: 1, Address: evmcommon.HexToAddress("0x01")}

	c.Publish(key, idx)
	_, ok := c.Get(key)
	require.False(t, ok)
	require.Equal(t, 0, c.Len())
}
