// Package resolver implements SlotResolver: for an observed slot and a
// LayoutIndex, decide which declared variable (and path into it) produced
// it, trying direct slots, mappings, nested mappings, and dynamic arrays in
// that order before falling back to a synthetic label (spec.md §4.4).
package resolver

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/keyoracle"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/slotcodec"
)

// KeySource ranks where a candidate key came from, used to pick a single
// canonical label when a slot has multiple matches (spec.md §4.4, §9).
type KeySource int

const (
	SourceArgument KeySource = iota
	SourceAddress
	SourceStack
	SourceConstant
)

// arrayIndexBound is the spec's "reasonable bound" for trying a candidate
// as a dynamic-array index (§4.4.4).
const arrayIndexBound = 1_000_000

// SlotMatch records one way an observed slot can be explained by the
// layout (spec.md §3). Multiple matches per slot are normal: packed
// variables sharing a slot, or distinct candidate keys hashing to the same
// slot.
type SlotMatch struct {
	Slot     evmcommon.Hash
	Variable *layout.StorageVariable
	Path     []layout.PathSegment
	Offset   int
	Size     int
	Source   KeySource
	Position int // calldata argument position, for tie-breaking; -1 if n/a
}

// Resolve returns every SlotMatch explaining slot against idx, trying
// candidates in resolution order. It never errors: an unmatched slot
// yields a single fallback match (§4.4.5).
func Resolve(idx *layout.Index, slot evmcommon.Hash, candidates []keyoracle.MappingKey) []SlotMatch {
	var matches []SlotMatch

	matches = append(matches, direct(idx, slot)...)
	matches = append(matches, mappings(idx, slot, candidates)...)
	matches = append(matches, nestedMappings(idx, slot, candidates)...)
	matches = append(matches, arrays(idx, slot, candidates)...)

	if len(matches) == 0 {
		matches = append(matches, fallback(slot))
	}
	return matches
}

func direct(idx *layout.Index, slot evmcommon.Hash) []SlotMatch {
	vars := idx.DirectSlotMap(slot)
	if len(vars) == 0 {
		return nil
	}

	var out []SlotMatch
	for _, v := range vars {
		if v.Encoding == layout.EncodingMapping || v.Encoding == layout.EncodingDynamicArray {
			// Handle/length word handled by its own resolution category;
			// array length is covered in arrays(), mapping roots have no
			// directly observable "whole value" beyond their length-less
			// handle, so nothing to emit here.
			continue
		}
		if v.Type != nil && v.Type.Kind == layout.TypeStruct {
			slotOffset := uint64(0)
			if slot != v.BaseSlot {
				slotOffset = slotOffsetWithin(v.BaseSlot, slot)
			}
			// A packed struct commonly has several fields sharing one slot
			// at different byte offsets (spec.md §4.4 resolution-order item
			// 1: "packed struct fields inside the same inner slot yield
			// multiple matches") — emit one SlotMatch per field, not just
			// the one at byte offset 0.
			fields := v.Type.StructFieldsAtSlot(slotOffset)
			for _, m := range fields {
				size := m.Field.Size
				if size <= 0 {
					size = 32
				}
				out = append(out, SlotMatch{Slot: slot, Variable: v, Path: m.Segments, Offset: m.Field.Offset, Size: size, Source: SourceConstant, Position: -1})
			}
			if len(fields) > 0 || slot != v.BaseSlot {
				// slot != v.BaseSlot with no field found means the slot
				// falls inside the struct's range but no declared field
				// covers it — nothing to emit, unlike the base-slot case
				// below which still falls back to a whole-variable match.
				continue
			}
		}
		out = append(out, SlotMatch{Slot: slot, Variable: v, Path: nil, Offset: v.Offset, Size: sizeOrWhole(v.Size), Source: SourceConstant, Position: -1})
	}
	return out
}

func slotOffsetWithin(base, slot evmcommon.Hash) uint64 {
	b := new(uint256.Int).SetBytes(base.Bytes())
	s := new(uint256.Int).SetBytes(slot.Bytes())
	diff := new(uint256.Int).Sub(s, b)
	return diff.Uint64()
}

func sizeOrWhole(size int) int {
	if size <= 0 {
		return 32
	}
	return size
}

func mappings(idx *layout.Index, slot evmcommon.Hash, candidates []keyoracle.MappingKey) []SlotMatch {
	var out []SlotMatch
	for _, root := range idx.MappingRoots() {
		if root.Type == nil || root.Type.ValueType == nil || root.Type.ValueType.Kind == layout.TypeMapping {
			continue // handled by nestedMappings
		}
		for pos, k := range candidates {
			if !keyTypeCompatible(root.Type, k) {
				continue
			}
			computed := slotcodec.MappingSlot(root.BaseSlot, k.Hex)
			if computed != slot {
				continue
			}
			seg := layout.PathSegment{Kind: layout.SegMappingKey, Key: keyRef(k)}
			out = append(out, SlotMatch{
				Slot: slot, Variable: root, Path: []layout.PathSegment{seg},
				Offset: 0, Size: sizeOrWhole(root.Size), Source: sourceOf(k), Position: pos,
			})
		}
	}
	return out
}

// nestedMappings tries ordered tuples of distinct candidates against each
// mapping-of-mapping root, capping the tuple size at the layout's declared
// nesting depth rather than an arbitrary constant (spec.md §9 Open
// Questions: "a faithful reimplementation should respect the declared
// nesting depth").
func nestedMappings(idx *layout.Index, slot evmcommon.Hash, candidates []keyoracle.MappingKey) []SlotMatch {
	var out []SlotMatch
	for _, root := range idx.MappingRoots() {
		depth := mappingDepth(root.Type)
		if depth < 2 {
			continue
		}
		out = append(out, tryDepth(root, slot, candidates, nil, nil, depth)...)
	}
	return out
}

func mappingDepth(t *layout.TypeDescriptor) int {
	depth := 0
	for t != nil && t.Kind == layout.TypeMapping {
		depth++
		t = t.ValueType
	}
	return depth
}

func tryDepth(root *layout.StorageVariable, slot evmcommon.Hash, candidates []keyoracle.MappingKey, chosen []keyoracle.MappingKey, used map[int]bool, depth int) []SlotMatch {
	if used == nil {
		used = make(map[int]bool)
	}
	if len(chosen) == depth {
		return nil
	}

	t := root.Type
	for i := 0; i < len(chosen); i++ {
		t = t.ValueType
	}
	if t == nil || t.Kind != layout.TypeMapping {
		return nil
	}

	var out []SlotMatch
	for pos, k := range candidates {
		if used[pos] {
			continue
		}
		if !keyTypeCompatibleMapping(t, k) {
			continue
		}
		nextChosen := append(append([]keyoracle.MappingKey{}, chosen...), k)
		used[pos] = true

		if len(nextChosen) == depth {
			hexes := make([]evmcommon.Hash, len(nextChosen))
			for i, c := range nextChosen {
				hexes[i] = c.Hex
			}
			computed := slotcodec.NestedMappingSlot(root.BaseSlot, hexes)
			if computed == slot {
				segs := make([]layout.PathSegment, len(nextChosen))
				for i, c := range nextChosen {
					segs[i] = layout.PathSegment{Kind: layout.SegMappingKey, Key: keyRef(c)}
				}
				size := 32
				out = append(out, SlotMatch{
					Slot: slot, Variable: root, Path: segs, Offset: 0, Size: size,
					Source: sourceOf(k), Position: pos,
				})
			}
		} else {
			out = append(out, tryDepth(root, slot, candidates, nextChosen, used, depth)...)
		}
		used[pos] = false
	}
	return out
}

func arrays(idx *layout.Index, slot evmcommon.Hash, candidates []keyoracle.MappingKey) []SlotMatch {
	var out []SlotMatch
	for _, root := range idx.ArrayRoots() {
		if slot == root.BaseSlot {
			out = append(out, SlotMatch{
				Slot: slot, Variable: root, Path: []layout.PathSegment{{Kind: layout.SegArrayLength}},
				Offset: 0, Size: 32, Source: SourceConstant, Position: -1,
			})
		}
		bound := uint256.NewInt(arrayIndexBound)
		for pos, k := range candidates {
			idxVal := new(uint256.Int).SetBytes(k.Hex.Bytes())
			if idxVal.Cmp(bound) >= 0 {
				continue
			}
			computed := slotcodec.ArrayElementSlot(root.BaseSlot, idxVal)
			if computed != slot {
				continue
			}
			out = append(out, SlotMatch{
				Slot: slot, Variable: root, Path: []layout.PathSegment{{Kind: layout.SegArrayIndex, Index: idxVal}},
				Offset: 0, Size: 32, Source: sourceOf(k), Position: pos,
			})
		}
	}
	return out
}

func fallback(slot evmcommon.Hash) SlotMatch {
	label := fmt.Sprintf("%s%s", fallbackLabelPrefix, slot.Hex()[:10])
	return SlotMatch{
		Slot: slot,
		Variable: &layout.StorageVariable{
			Label:    label,
			BaseSlot: slot,
			Type:     &layout.TypeDescriptor{Kind: layout.TypePrimitive, Primitive: slotcodec.Primitive{Kind: slotcodec.KindUnknown}},
			Encoding: layout.EncodingInplace,
		},
		Path: nil, Offset: 0, Size: 32, Source: SourceConstant, Position: -1,
	}
}

func keyRef(k keyoracle.MappingKey) layout.MappingKeyRef {
	return layout.MappingKeyRef{Hex: k.Hex, Decoded: k.Decoded.String()}
}

func sourceOf(k keyoracle.MappingKey) KeySource {
	if k.Type == nil {
		return SourceStack
	}
	if k.Type.Kind == slotcodec.KindAddress {
		return SourceAddress
	}
	return SourceArgument
}

// keyTypeCompatible reports whether candidate k can be tried against a
// mapping root's declared key type. Untyped candidates (stack values) are
// always tried; typed candidates must match when the mapping's key type is
// known (spec.md §4.4 "Filtering by key type").
func keyTypeCompatible(mappingType *layout.TypeDescriptor, k keyoracle.MappingKey) bool {
	if k.Type == nil {
		return true
	}
	if mappingType.KeyIsBytesOrString {
		return false // bytes/string keys aren't modeled as fixed-width candidates here
	}
	return mappingType.KeyType.Kind == slotcodec.KindUnknown || mappingType.KeyType.Kind == k.Type.Kind
}

func keyTypeCompatibleMapping(t *layout.TypeDescriptor, k keyoracle.MappingKey) bool {
	return keyTypeCompatible(t, k)
}
