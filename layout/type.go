// Package layout normalizes a compiler-emitted storage layout document into
// a traversable, read-only index of StorageVariable nodes keyed by their
// statically known base slot, plus the mapping and dynamic-array roots that
// require key-guessing to resolve.
package layout

import (
	"fmt"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/slotcodec"
)

// Encoding is the storage encoding a StorageVariable uses, mirroring the
// Solidity compiler's own storageLayout encoding tags.
type Encoding string

const (
	EncodingInplace       Encoding = "inplace"
	EncodingBytesOrString Encoding = "bytes_or_string"
	EncodingMapping       Encoding = "mapping"
	EncodingDynamicArray  Encoding = "dynamic_array"
)

// TypeKind tags the variant held by a TypeDescriptor.
type TypeKind int

const (
	TypePrimitive TypeKind = iota
	TypeBytesOrString
	TypeFixedArray
	TypeDynamicArray
	TypeMapping
	TypeStruct
)

// StructField is one member of a Struct-kind TypeDescriptor: its name,
// type, and position (slot relative to the struct's base, byte offset and
// width within that slot).
type StructField struct {
	Name   string
	Type   *TypeDescriptor
	Slot   uint64 // offset in slots from the struct's base slot
	Offset int    // byte offset within the slot
	Size   int    // declared byte width
}

// TypeDescriptor is the tagged variant described by spec.md §3. Types are
// referenced by pointer (not embedded) so that self-referential type
// graphs (a mapping whose value type is itself, reached only through a
// chain of mappings) are representable without infinite structural
// recursion — traversal is always bounded by slot concreteness, not by the
// type graph's shape.
type TypeDescriptor struct {
	Kind TypeKind

	// TypePrimitive
	Primitive slotcodec.Primitive

	// TypeBytesOrString
	IsString bool

	// TypeFixedArray / TypeDynamicArray
	Element *TypeDescriptor
	Length  uint64 // TypeFixedArray only

	// TypeMapping
	KeyType            slotcodec.Primitive // zero value + KeyIsBytesOrString when key is bytes/string
	KeyIsBytesOrString bool
	ValueType          *TypeDescriptor

	// TypeStruct
	Fields []StructField
}

// IsMapping reports whether t (or, transitively, nothing — mappings are
// leaves for this check) is a mapping type.
func (t *TypeDescriptor) IsMapping() bool { return t != nil && t.Kind == TypeMapping }

// StorageVariable is one declared layout node (spec.md §3).
type StorageVariable struct {
	Label    string
	Type     *TypeDescriptor
	BaseSlot evmcommon.Hash
	Offset   int
	Size     int
	Encoding Encoding
}

// MalformedLayout is returned when a layout document fails validation:
// a dangling type reference, an offset overflowing the 32-byte slot, or
// two packed variables overlapping the same byte range.
type MalformedLayout struct {
	Address string
	Detail  string
}

func (e *MalformedLayout) Error() string {
	return fmt.Sprintf("layout: malformed layout for %s: %s", e.Address, e.Detail)
}
