package layout

import (
	"sort"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/slotcodec"
)

// Index is the read-only, immutable-after-construction result of ingesting
// a compiler-emitted layout document. It is safe for concurrent use once
// built (spec.md §5, §9 "Global mutable state").
type Index struct {
	Address string

	directSlotMap map[evmcommon.Hash][]*StorageVariable
	mappingRoots  []*StorageVariable
	arrayRoots    []*StorageVariable
	all           []*StorageVariable
}

// DirectSlotMap returns the variables (ordered by Offset ascending) known
// to live at slot, or nil if slot has no direct entry.
func (idx *Index) DirectSlotMap(slot evmcommon.Hash) []*StorageVariable {
	return idx.directSlotMap[slot]
}

// MappingRoots returns every top-level mapping-encoded variable.
func (idx *Index) MappingRoots() []*StorageVariable { return idx.mappingRoots }

// ArrayRoots returns every top-level dynamic-array-encoded variable.
func (idx *Index) ArrayRoots() []*StorageVariable { return idx.arrayRoots }

// All returns every declared variable in declaration order.
func (idx *Index) All() []*StorageVariable { return idx.all }

// Build constructs an Index from a flat variable list. It fails with
// *MalformedLayout if any packed variable's [offset, offset+size) range
// overflows 32 bytes or overlaps another variable sharing the same slot.
// Dangling type references are the caller's (LayoutSource parser's)
// responsibility to have already resolved into concrete *TypeDescriptor
// pointers; Build validates the resulting structural invariants only.
func Build(address string, variables []*StorageVariable) (*Index, error) {
	idx := &Index{
		Address:       address,
		directSlotMap: make(map[evmcommon.Hash][]*StorageVariable),
		all:           variables,
	}

	bySlot := make(map[evmcommon.Hash][]*StorageVariable)
	// validationBySlot holds only each variable's own declared (offset,
	// size) at its own base slot — the basis for the packing-overlap
	// check. Slots a struct additionally spans via nested fields are not
	// re-validated here since the struct's own Offset/Size describes its
	// base slot only, not every slot its fields occupy.
	validationBySlot := make(map[evmcommon.Hash][]*StorageVariable)
	for _, v := range variables {
		if v.Type == nil {
			return nil, &MalformedLayout{Address: address, Detail: "variable " + v.Label + " has a nil type reference"}
		}
		switch v.Encoding {
		case EncodingMapping:
			idx.mappingRoots = append(idx.mappingRoots, v)
		case EncodingDynamicArray:
			idx.arrayRoots = append(idx.arrayRoots, v)
		}
		validationBySlot[v.BaseSlot] = append(validationBySlot[v.BaseSlot], v)

		// A struct spans every slot its fields (recursively) occupy, not
		// just its base slot; register the variable under each so a
		// direct lookup of any field's slot finds its owning struct.
		for _, slot := range slotsSpanned(v) {
			bySlot[slot] = append(bySlot[slot], v)
		}
	}

	for slot, vars := range validationBySlot {
		if err := validatePacking(address, slot, vars); err != nil {
			return nil, err
		}
	}
	for slot, vars := range bySlot {
		sort.Slice(vars, func(i, j int) bool { return vars[i].Offset < vars[j].Offset })
		idx.directSlotMap[slot] = vars
	}

	return idx, nil
}

// slotsSpanned returns every absolute slot v occupies: its base slot, plus,
// for struct-typed variables, every slot reached by recursively walking
// field.Slot offsets (including nested structs).
func slotsSpanned(v *StorageVariable) []evmcommon.Hash {
	slots := map[evmcommon.Hash]struct{}{v.BaseSlot: {}}
	if v.Type != nil && v.Type.Kind == TypeStruct {
		collectStructSlots(v.BaseSlot, v.Type, slots)
	}
	out := make([]evmcommon.Hash, 0, len(slots))
	for s := range slots {
		out = append(out, s)
	}
	return out
}

func collectStructSlots(base evmcommon.Hash, t *TypeDescriptor, out map[evmcommon.Hash]struct{}) {
	for _, f := range t.Fields {
		fieldSlot := slotcodec.StructFieldSlot(base, f.Slot)
		out[fieldSlot] = struct{}{}
		if f.Type != nil && f.Type.Kind == TypeStruct {
			collectStructSlots(fieldSlot, f.Type, out)
		}
	}
}

func validatePacking(address string, slot evmcommon.Hash, vars []*StorageVariable) error {
	type interval struct {
		start, end int
		label      string
	}
	intervals := make([]interval, 0, len(vars))
	for _, v := range vars {
		size := v.Size
		if size <= 0 {
			size = 32
		}
		if v.Offset < 0 || v.Offset+size > 32 {
			return &MalformedLayout{Address: address, Detail: "variable " + v.Label + " offset+size overflows 32-byte slot"}
		}
		intervals = append(intervals, interval{v.Offset, v.Offset + size, v.Label})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].start < intervals[j].start })
	for i := 1; i < len(intervals); i++ {
		if intervals[i].start < intervals[i-1].end {
			return &MalformedLayout{
				Address: address,
				Detail:  "variables " + intervals[i-1].label + " and " + intervals[i].label + " overlap in slot " + slot.Hex(),
			}
		}
	}
	return nil
}
