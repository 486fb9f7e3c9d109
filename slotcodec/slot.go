package slotcodec

import (
	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/evmcommon"
)

// MappingSlot returns keccak256(key ‖ base), the storage slot of the value
// at key in the mapping rooted at base.
func MappingSlot(base, key evmcommon.Hash) evmcommon.Hash {
	return evmcommon.Keccak256Hash(key.Bytes(), base.Bytes())
}

// NestedMappingSlot left-folds MappingSlot over keys, applying keys[0]
// against base first, then keys[1] against the result, and so on. It
// implements arbitrary nesting depth, not just the fixed depth-2 case.
func NestedMappingSlot(base evmcommon.Hash, keys []evmcommon.Hash) evmcommon.Hash {
	slot := base
	for _, k := range keys {
		slot = MappingSlot(slot, k)
	}
	return slot
}

// ArrayElementSlot returns keccak256(base) + index (mod 2^256), the storage
// slot of a dynamic array's element at index. The array's length itself
// lives at base.
func ArrayElementSlot(base evmcommon.Hash, index *uint256.Int) evmcommon.Hash {
	dataBase := new(uint256.Int).SetBytes(evmcommon.Keccak256(base.Bytes()))
	dataBase.Add(dataBase, index)
	return u256ToHash(dataBase)
}

// StructFieldSlot returns base + fieldSlotOffset (mod 2^256), the slot
// holding a struct field fieldSlotOffset words after the struct's base.
func StructFieldSlot(base evmcommon.Hash, fieldSlotOffset uint64) evmcommon.Hash {
	b := new(uint256.Int).SetBytes(base.Bytes())
	b.AddUint64(b, fieldSlotOffset)
	return u256ToHash(b)
}

// AddU256 adds a u256 offset to a base slot, wrapping mod 2^256. Used by
// the assembler when walking multi-slot dynamic-array data regions (e.g.
// bytes/string long-form continuation slots).
func AddU256(base evmcommon.Hash, offset *uint256.Int) evmcommon.Hash {
	b := new(uint256.Int).SetBytes(base.Bytes())
	b.Add(b, offset)
	return u256ToHash(b)
}

func u256ToHash(v *uint256.Int) evmcommon.Hash {
	var out evmcommon.Hash
	v.WriteToSlice(out[:])
	return out
}

// BytesOrStringLayout decodes the head word of a `bytes`/`string` variable
// per Solidity's storage-layout rules: the low bit of the head word
// distinguishes a short (inline) encoding, where the value fits in 31
// bytes and length = headWord[31] / 2, from a long encoding, where
// length = (headWord - 1) / 2 and the data lives at keccak256(base) and
// subsequent slots.
func BytesOrStringLayout(base, headWord evmcommon.Hash) (inline bool, length uint64, dataBaseSlot evmcommon.Hash) {
	lastByte := headWord[evmcommon.HashLength-1]
	if lastByte&1 == 0 {
		// Short form: length is the low 7 bits of the last byte (value/2).
		return true, uint64(lastByte) / 2, evmcommon.Hash{}
	}
	full := new(uint256.Int).SetBytes(headWord.Bytes())
	one := uint256.NewInt(1)
	full.Sub(full, one)
	length = full.Div(full, uint256.NewInt(2)).Uint64()
	dataBaseSlot = evmcommon.Keccak256Hash(base.Bytes())
	return false, length, dataBaseSlot
}

// ExtractSubWord returns the sub-slice of word occupying byte range
// [offset, offset+size). Solidity packs variables into a slot starting
// from byte 0 (the least-significant byte of the EVM word, i.e. the right
// end of the 32-byte big-endian representation): offset 0 means the
// low-order bytes.
func ExtractSubWord(word evmcommon.Hash, offset, size int) []byte {
	if offset < 0 || size <= 0 || offset+size > evmcommon.HashLength {
		return nil
	}
	// word[:] is big-endian; byte offset 0 (low-order) is the last byte.
	start := evmcommon.HashLength - offset - size
	end := evmcommon.HashLength - offset
	out := make([]byte, size)
	copy(out, word[start:end])
	return out
}
