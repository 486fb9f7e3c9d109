package layout

import "github.com/holiman/uint256"

// SegmentKind tags the variant held by a PathSegment.
type SegmentKind int

const (
	SegStructField SegmentKind = iota
	SegMappingKey
	SegArrayIndex
	SegArrayLength
)

// MappingKeyRef is the minimal shape PathSegment needs from a keyoracle
// candidate: the 32-byte form plus a pre-rendered display string, which the
// assembler's fullExpression builder writes out.
type MappingKeyRef struct {
	Hex     [32]byte
	Decoded string // pre-rendered display form, e.g. "123", "0xabc...", `"name"`
}

// PathSegment is one step in a SlotMatch's path from a top-level variable
// down to the specific slot/sub-range that was observed (spec.md §3).
type PathSegment struct {
	Kind SegmentKind

	// SegStructField
	FieldName string

	// SegMappingKey
	Key MappingKeyRef

	// SegArrayIndex
	Index *uint256.Int
}

// StructField walks struct.Fields (recursing into nested structs) to find
// the field occupying slot offset slotOffset (in slots, relative to
// the struct's base) / byteOffset (within that slot). It returns the
// PathSegment chain from the struct down to the innermost matching field,
// or ok=false if no field covers that position.
func (t *TypeDescriptor) StructField(slotOffset uint64, byteOffset int) (segments []PathSegment, leaf *StructField, ok bool) {
	if t == nil || t.Kind != TypeStruct {
		return nil, nil, false
	}
	for i := range t.Fields {
		f := &t.Fields[i]

		if f.Type != nil && f.Type.Kind == TypeStruct {
			if slotOffset < f.Slot {
				continue
			}
			seg := PathSegment{Kind: SegStructField, FieldName: f.Name}
			inner, innerLeaf, innerOK := f.Type.StructField(slotOffset-f.Slot, byteOffset)
			if innerOK {
				return append([]PathSegment{seg}, inner...), innerLeaf, true
			}
			continue
		}

		if f.Slot != slotOffset {
			continue
		}
		size := f.Size
		if size <= 0 {
			size = 32
		}
		if byteOffset < f.Offset || byteOffset >= f.Offset+size {
			continue
		}
		return []PathSegment{{Kind: SegStructField, FieldName: f.Name}}, f, true
	}
	return nil, nil, false
}

// StructFieldMatch is one field covering a given slot offset, as returned
// by StructFieldsAtSlot.
type StructFieldMatch struct {
	Segments []PathSegment
	Field    *StructField
}

// StructFieldsAtSlot walks struct.Fields (recursing into nested structs) to
// find every field occupying slot offset slotOffset (in slots, relative to
// the struct's base), regardless of byte offset within that slot. A packed
// struct commonly has several fields sharing one slot at different byte
// offsets (spec.md §8 scenario 2); this returns one StructFieldMatch per
// such field, in declaration order.
func (t *TypeDescriptor) StructFieldsAtSlot(slotOffset uint64) []StructFieldMatch {
	if t == nil || t.Kind != TypeStruct {
		return nil
	}
	var out []StructFieldMatch
	for i := range t.Fields {
		f := &t.Fields[i]

		if f.Type != nil && f.Type.Kind == TypeStruct {
			if slotOffset < f.Slot {
				continue
			}
			inner := f.Type.StructFieldsAtSlot(slotOffset - f.Slot)
			if len(inner) == 0 {
				continue
			}
			seg := PathSegment{Kind: SegStructField, FieldName: f.Name}
			for _, m := range inner {
				out = append(out, StructFieldMatch{
					Segments: append([]PathSegment{seg}, m.Segments...),
					Field:    m.Field,
				})
			}
			continue
		}

		if f.Slot != slotOffset {
			continue
		}
		out = append(out, StructFieldMatch{
			Segments: []PathSegment{{Kind: SegStructField, FieldName: f.Name}},
			Field:    f,
		})
	}
	return out
}
