package resolver

import (
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/slotcodec"
)

// Verify re-derives a SlotMatch's slot from its recorded path and keys and
// reports whether it reproduces m.Slot bit-for-bit (spec.md invariant I2,
// property P1). Direct matches (empty path, or a path of only StructField
// segments) need no re-derivation: their correctness follows from the
// layout's statically known base slots (I1), not from a hash guess, so
// spec.md §3 scopes I2 to "any observed slot s not matched directly."
func Verify(m SlotMatch) bool {
	if m.Variable == nil {
		return false
	}
	if allStructFields(m.Path) {
		return true
	}

	switch {
	case len(m.Path) == 1 && m.Path[0].Kind == layout.SegMappingKey:
		key := evmcommon.Hash(m.Path[0].Key.Hex)
		return slotcodec.MappingSlot(m.Variable.BaseSlot, key) == m.Slot

	case len(m.Path) >= 2 && allMappingKeys(m.Path):
		keys := make([]evmcommon.Hash, len(m.Path))
		for i, seg := range m.Path {
			keys[i] = evmcommon.Hash(seg.Key.Hex)
		}
		return slotcodec.NestedMappingSlot(m.Variable.BaseSlot, keys) == m.Slot

	case len(m.Path) == 1 && m.Path[0].Kind == layout.SegArrayIndex:
		if m.Path[0].Index == nil {
			return false
		}
		return slotcodec.ArrayElementSlot(m.Variable.BaseSlot, m.Path[0].Index) == m.Slot

	case len(m.Path) == 1 && m.Path[0].Kind == layout.SegArrayLength:
		return m.Slot == m.Variable.BaseSlot

	default:
		return true
	}
}

func allStructFields(path []layout.PathSegment) bool {
	for _, seg := range path {
		if seg.Kind != layout.SegStructField {
			return false
		}
	}
	return true
}

func allMappingKeys(path []layout.PathSegment) bool {
	for _, seg := range path {
		if seg.Kind != layout.SegMappingKey {
			return false
		}
	}
	return true
}
