// Package assembler implements TraceAssembler: it joins SlotMatch groups
// with diffed slot values, decodes each affected sub-word into typed
// current/next values via slotcodec, groups by top-level variable, and
// emits the final per-account StorageAccessTrace (spec.md §4.6).
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/accessdiff"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/resolver"
	"github.com/bytesentry/slotlens/slotcodec"
)

// DecodedValue pairs a slot's raw hex word with its typed decoding.
type DecodedValue struct {
	Hex     evmcommon.Hash
	Decoded slotcodec.Value
}

// LabeledAccess is one row of the final output: a single slot access
// attributed to a declared variable and path (spec.md §3).
type LabeledAccess struct {
	Current        DecodedValue
	Next           *DecodedValue
	Modified       bool
	Slots          []evmcommon.Hash
	Path           []layout.PathSegment
	FullExpression string
	PartialDecode  bool
	OracleGap      bool
}

// StorageAccessTrace is the per-account result (spec.md §3).
type StorageAccessTrace struct {
	Reads     map[evmcommon.Hash][]LabeledAccess
	Writes    map[evmcommon.Hash][]LabeledAccess
	Intrinsic accessdiff.IntrinsicDiff
}

// dataSlots is the set of slots an analysis has observed values for,
// keyed by slot hex — used to look up bytes/string continuation slots
// that the direct access list may or may not have included.
type dataSlots map[evmcommon.Hash]accessdiff.SlotAccess

// Assemble builds a StorageAccessTrace for one account from its diffed
// slot accesses and, for every access, the SlotMatch candidates the
// resolver produced for that slot. Accesses with no matches are skipped
// (the resolver's fallback guarantees at least one match per slot per
// spec.md §4.4.5, so this is defensive, not expected in practice).
func Assemble(accesses []accessdiff.SlotAccess, matchesBySlot map[evmcommon.Hash][]resolver.SlotMatch, intrinsic accessdiff.IntrinsicDiff) StorageAccessTrace {
	trace := StorageAccessTrace{
		Reads:     make(map[evmcommon.Hash][]LabeledAccess),
		Writes:    make(map[evmcommon.Hash][]LabeledAccess),
		Intrinsic: intrinsic,
	}

	snapshots := make(dataSlots, len(accesses))
	for _, a := range accesses {
		snapshots[a.Slot] = a
	}

	for _, access := range accesses {
		matches := matchesBySlot[access.Slot]
		for _, m := range matches {
			la := buildLabeledAccess(access, m, snapshots)
			if access.Modified() {
				trace.Writes[access.Slot] = append(trace.Writes[access.Slot], la)
			} else {
				trace.Reads[access.Slot] = append(trace.Reads[access.Slot], la)
			}
		}
	}

	for _, group := range [](map[evmcommon.Hash][]LabeledAccess){trace.Reads, trace.Writes} {
		for slot, rows := range group {
			group[slot] = sortRows(rows)
		}
	}

	return trace
}

func buildLabeledAccess(access accessdiff.SlotAccess, m resolver.SlotMatch, snapshots dataSlots) LabeledAccess {
	la := LabeledAccess{
		Path:      m.Path,
		Slots:     []evmcommon.Hash{access.Slot},
		OracleGap: access.OracleGap,
	}

	if isArrayLength(m) {
		return decodeArrayLength(access, m)
	}
	if isBytesOrString(m) {
		return decodeBytesOrString(access, m, snapshots)
	}

	preRaw := slotcodec.ExtractSubWord(access.Pre, m.Offset, m.Size)
	postRaw := slotcodec.ExtractSubWord(access.Post, m.Offset, m.Size)
	prim := primitiveFor(m)

	curVal, _ := slotcodec.DecodeScalar(preRaw, prim)
	la.Current = DecodedValue{Hex: access.Pre, Decoded: curVal}

	subModified := preRaw != nil && postRaw != nil && string(preRaw) != string(postRaw)
	if subModified {
		nextVal, _ := slotcodec.DecodeScalar(postRaw, prim)
		nd := DecodedValue{Hex: access.Post, Decoded: nextVal}
		la.Next = &nd
	}
	la.Modified = subModified
	la.FullExpression = fullExpression(m)
	return la
}

func primitiveFor(m resolver.SlotMatch) slotcodec.Primitive {
	if m.Variable == nil || m.Variable.Type == nil {
		return slotcodec.Primitive{Kind: slotcodec.KindUnknown}
	}
	t := m.Variable.Type
	// Walk to the type actually occupying this sub-range: a direct scalar,
	// a mapping's value type, an array's element type, or, for a struct
	// variable, the primitive field named by the path's StructField
	// segments. Any other path-bearing match (e.g. a struct reached through
	// a mapping or array) falls back to an unsigned-integer decode sized by
	// m.Size.
	switch t.Kind {
	case layout.TypeStruct:
		cur := t
		for _, seg := range m.Path {
			if seg.Kind != layout.SegStructField || cur == nil || cur.Kind != layout.TypeStruct {
				break
			}
			var next *layout.TypeDescriptor
			for _, f := range cur.Fields {
				if f.Name == seg.FieldName {
					next = f.Type
				}
			}
			cur = next
		}
		if cur != nil && cur.Kind == layout.TypePrimitive {
			return cur.Primitive
		}
	case layout.TypeMapping:
		if t.ValueType != nil && t.ValueType.Kind == layout.TypePrimitive {
			return t.ValueType.Primitive
		}
	case layout.TypeDynamicArray, layout.TypeFixedArray:
		if t.Element != nil && t.Element.Kind == layout.TypePrimitive {
			return t.Element.Primitive
		}
	case layout.TypePrimitive:
		return t.Primitive
	}
	if len(m.Path) > 0 {
		return inferPrimitiveFromWidth(m.Size)
	}
	return t.Primitive
}

func inferPrimitiveFromWidth(size int) slotcodec.Primitive {
	return slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: size * 8}
}

func isArrayLength(m resolver.SlotMatch) bool {
	return len(m.Path) > 0 && m.Path[len(m.Path)-1].Kind == layout.SegArrayLength
}

func decodeArrayLength(access accessdiff.SlotAccess, m resolver.SlotMatch) LabeledAccess {
	prim := slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: 256}
	curVal, _ := slotcodec.DecodeScalar(access.Pre.Bytes(), prim)
	la := LabeledAccess{
		Current:        DecodedValue{Hex: access.Pre, Decoded: curVal},
		Path:           m.Path,
		Slots:          []evmcommon.Hash{access.Slot},
		FullExpression: fullExpression(m),
		OracleGap:      access.OracleGap,
	}
	if access.Pre != access.Post {
		nextVal, _ := slotcodec.DecodeScalar(access.Post.Bytes(), prim)
		nd := DecodedValue{Hex: access.Post, Decoded: nextVal}
		la.Next = &nd
		la.Modified = true
	}
	return la
}

func isBytesOrString(m resolver.SlotMatch) bool {
	return m.Variable != nil && m.Variable.Encoding == layout.EncodingBytesOrString && len(m.Path) == 0
}

// decodeBytesOrString decodes a bytes/string head word, and, for the long
// encoding, walks the data slots recorded in snapshots. Data slots the
// analysis did not observe are reported as a best-effort truncated value
// with PartialDecode set (spec.md §4.6.2).
func decodeBytesOrString(access accessdiff.SlotAccess, m resolver.SlotMatch, snapshots dataSlots) LabeledAccess {
	la := LabeledAccess{
		Path:           m.Path,
		Slots:          []evmcommon.Hash{access.Slot},
		FullExpression: fullExpression(m),
		OracleGap:      access.OracleGap,
	}

	curBytes, curPartial := readBytesOrString(m.Variable.BaseSlot, access.Pre, snapshots)
	la.Current = DecodedValue{Hex: access.Pre, Decoded: slotcodec.Value{Kind: slotcodec.KindUnknown, Raw: curBytes}}

	if access.Pre != access.Post {
		nextBytes, nextPartial := readBytesOrString(m.Variable.BaseSlot, access.Post, snapshots)
		nd := DecodedValue{Hex: access.Post, Decoded: slotcodec.Value{Kind: slotcodec.KindUnknown, Raw: nextBytes}}
		la.Next = &nd
		la.Modified = true
		la.PartialDecode = curPartial || nextPartial
	} else {
		la.PartialDecode = curPartial
	}
	return la
}

func readBytesOrString(base, headWord evmcommon.Hash, snapshots dataSlots) ([]byte, bool) {
	inline, length, dataBase := slotcodec.BytesOrStringLayout(base, headWord)
	if inline {
		return headWord.Bytes()[:length], false
	}
	if length == 0 {
		return nil, false
	}
	out := make([]byte, 0, length)
	numWords := (length + 31) / 32
	partial := false
	for i := uint64(0); i < numWords; i++ {
		slot := slotcodec.AddU256(dataBase, uint256.NewInt(i))
		snap, ok := snapshots[slot]
		if !ok {
			partial = true
			break
		}
		out = append(out, snap.Post.Bytes()...)
	}
	if uint64(len(out)) > length {
		out = out[:length]
	}
	return out, partial
}

// fullExpression concatenates path segments into the canonical identifier
// string (spec.md §4.6.4): ".name" for struct fields, "[key]" for mapping
// keys, "[index]" for array elements, "._length" for lengths.
func fullExpression(m resolver.SlotMatch) string {
	var b strings.Builder
	if m.Variable != nil {
		b.WriteString(m.Variable.Label)
	}
	for _, seg := range m.Path {
		switch seg.Kind {
		case layout.SegStructField:
			b.WriteByte('.')
			b.WriteString(seg.FieldName)
		case layout.SegMappingKey:
			b.WriteByte('[')
			b.WriteString(seg.Key.Decoded)
			b.WriteByte(']')
		case layout.SegArrayIndex:
			b.WriteByte('[')
			if seg.Index != nil {
				b.WriteString(seg.Index.Dec())
			}
			b.WriteByte(']')
		case layout.SegArrayLength:
			b.WriteString("._length")
		}
	}
	return b.String()
}

// sortRows orders LabeledAccess entries within a variable by a path key:
// struct fields by name (not declaration order), mapping keys by their
// decoded display string (so numeric keys compare as text), array indices
// numerically, with ties keeping their input order.
func sortRows(rows []LabeledAccess) []LabeledAccess {
	sort.SliceStable(rows, func(i, j int) bool {
		return pathSortKey(rows[i].Path) < pathSortKey(rows[j].Path)
	})
	return rows
}

func pathSortKey(path []layout.PathSegment) string {
	var b strings.Builder
	for _, seg := range path {
		switch seg.Kind {
		case layout.SegStructField:
			fmt.Fprintf(&b, "f:%s|", seg.FieldName)
		case layout.SegMappingKey:
			fmt.Fprintf(&b, "k:%s|", seg.Key.Decoded)
		case layout.SegArrayIndex:
			if seg.Index != nil {
				dec := seg.Index.Dec()
				pad := 80 - len(dec)
				if pad < 0 {
					pad = 0
				}
				fmt.Fprintf(&b, "i:%s%s|", strings.Repeat("0", pad), dec)
			}
		case layout.SegArrayLength:
			b.WriteString("l:|")
		}
	}
	return b.String()
}
