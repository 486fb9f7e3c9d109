package slotcodec

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
)

func TestMappingSlotMatchesKeccakOfKeyThenBase(t *testing.T) {
	base := evmcommon.HexToHash("0x00")
	key := evmcommon.HexToHash("0x01")
	want := evmcommon.Keccak256Hash(key.Bytes(), base.Bytes())
	require.Equal(t, want, MappingSlot(base, key))
}

func TestNestedMappingSlotIsLeftFold(t *testing.T) {
	base := evmcommon.HexToHash("0x03")
	k1 := evmcommon.HexToHash("0x0a")
	k2 := evmcommon.HexToHash("0x0b")

	want := MappingSlot(MappingSlot(base, k1), k2)
	got := NestedMappingSlot(base, []evmcommon.Hash{k1, k2})
	require.Equal(t, want, got)
}

func TestNestedMappingSlotSingleKeyMatchesMappingSlot(t *testing.T) {
	base := evmcommon.HexToHash("0x05")
	k := evmcommon.HexToHash("0x07")
	require.Equal(t, MappingSlot(base, k), NestedMappingSlot(base, []evmcommon.Hash{k}))
}

func TestArrayElementSlotAddsIndexToKeccakOfBase(t *testing.T) {
	base := evmcommon.HexToHash("0x02")
	dataBase := new(uint256.Int).SetBytes(evmcommon.Keccak256(base.Bytes()))
	idx := uint256.NewInt(3)
	want := new(uint256.Int).Add(dataBase, idx)

	got := ArrayElementSlot(base, idx)
	require.Equal(t, want.Bytes32(), [32]byte(got))
}

func TestStructFieldSlotIsBaseOffset(t *testing.T) {
	base := evmcommon.HexToHash("0x0a")
	got := StructFieldSlot(base, 3)

	b := new(uint256.Int).SetBytes(base.Bytes())
	b.AddUint64(b, 3)
	require.Equal(t, b.Bytes32(), [32]byte(got))
}

func TestStructFieldSlotOffsetZeroIsBase(t *testing.T) {
	base := evmcommon.HexToHash("0x2a")
	require.Equal(t, base, StructFieldSlot(base, 0))
}

func TestBytesOrStringLayoutShortForm(t *testing.T) {
	base := evmcommon.HexToHash("0x04")
	// "hello" (5 bytes) left-aligned, length*2 in the low byte: 5*2 = 10 = 0x0a.
	var head evmcommon.Hash
	copy(head[:5], []byte("hello"))
	head[31] = 10

	inline, length, _ := BytesOrStringLayout(base, head)
	require.True(t, inline)
	require.Equal(t, uint64(5), length)
}

func TestBytesOrStringLayoutLongForm(t *testing.T) {
	base := evmcommon.HexToHash("0x09")
	// Encode length=64: (64*2)+1 = 129 = 0x81.
	head := evmcommon.BytesToHash([]byte{0x81})

	inline, length, dataBase := BytesOrStringLayout(base, head)
	require.False(t, inline)
	require.Equal(t, uint64(64), length)
	require.Equal(t, evmcommon.Keccak256Hash(base.Bytes()), dataBase)
}

func TestExtractSubWordLowOrderBytes(t *testing.T) {
	var w evmcommon.Hash
	w[31] = 0xaa // offset 0, size 1 -> low-order byte
	w[30] = 0xbb // offset 1, size 1

	require.Equal(t, []byte{0xaa}, ExtractSubWord(w, 0, 1))
	require.Equal(t, []byte{0xbb}, ExtractSubWord(w, 1, 1))
	require.Equal(t, []byte{0xbb, 0xaa}, ExtractSubWord(w, 0, 2))
}

func TestExtractSubWordOutOfRange(t *testing.T) {
	var w evmcommon.Hash
	require.Nil(t, ExtractSubWord(w, 31, 2))
	require.Nil(t, ExtractSubWord(w, -1, 1))
	require.Nil(t, ExtractSubWord(w, 0, 0))
}

func TestAddU256Wraps(t *testing.T) {
	base := evmcommon.HexToHash("0x01")
	got := AddU256(base, uint256.NewInt(5))
	require.Equal(t, evmcommon.HexToHash("0x06"), got)

	var max evmcommon.Hash
	for i := range max {
		max[i] = 0xff
	}
	require.Equal(t, evmcommon.HexToHash("0x04"), AddU256(max, uint256.NewInt(5)))
}
