// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.
//
// Adapted from go-ethereum's accounts/abi package: reimplemented in modern
// Go idiom (explicit error returns, no package-level logger) for the subset
// of ABI decoding slotlens/abi needs.

package abi

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/slotcodec"
)

// Argument is one input parameter of a Method.
type Argument struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Indexed bool   `json:"indexed"`

	parsed Type
}

// DecodedArgument is the result of unpacking one calldata argument:
// exactly one of Scalar or Elements is populated, per Kind.
type DecodedArgument struct {
	Name     string
	Type     Type
	Scalar   slotcodec.Value   // valid when Type.Kind is not Slice/Array
	Elements []slotcodec.Value // valid when Type.Kind is Slice or Array
}

const wordSize = 32

// Arguments is an ordered list of Argument, matching a Method's Inputs.
type Arguments []Argument

// resolve parses every argument's declared type string once.
func (args Arguments) resolve() ([]Type, error) {
	out := make([]Type, len(args))
	for i, a := range args {
		t, err := ParseType(a.Type)
		if err != nil {
			return nil, fmt.Errorf("abi: argument %q: %w", a.Name, err)
		}
		out[i] = t
	}
	return out, nil
}

// Unpack decodes ABI-encoded calldata (with the 4-byte selector already
// stripped) into one DecodedArgument per declared input, in declaration
// order. Dynamic bytes/string arguments are skipped, since KeyOracle only
// needs scalar and flat-array key candidates (spec.md §4.3.2); a type
// string that does not parse (e.g. a tuple) makes Unpack return an error.
func (args Arguments) Unpack(data []byte) ([]DecodedArgument, error) {
	types, err := args.resolve()
	if err != nil {
		return nil, err
	}

	out := make([]DecodedArgument, 0, len(args))
	for i, t := range types {
		headOffset := i * wordSize
		if headOffset+wordSize > len(data) {
			break // calldata shorter than the declared signature; stop, don't fail
		}
		head := data[headOffset : headOffset+wordSize]

		switch t.Kind {
		case KindSlice:
			tailOffset := new(uint256.Int).SetBytes(head).Uint64()
			elems, err := decodeDynamicArray(data, int(tailOffset), t)
			if err != nil {
				continue
			}
			out = append(out, DecodedArgument{Name: args[i].Name, Type: t, Elements: elems})
		case KindArray:
			elems, err := decodeFixedArray(head, data, headOffset, t)
			if err != nil {
				continue
			}
			out = append(out, DecodedArgument{Name: args[i].Name, Type: t, Elements: elems})
		case KindBytes, KindString:
			// Dynamic scalars: head is a tail offset, not a usable key value
			// on its own. KeyOracle does not try raw bytes/string args as
			// 32-byte mapping keys, so skip.
			continue
		default:
			v, err := slotcodec.DecodeScalar(head, t.primitive())
			if err != nil {
				continue
			}
			out = append(out, DecodedArgument{Name: args[i].Name, Type: t, Scalar: v})
		}
	}
	return out, nil
}

func decodeFixedArray(head, data []byte, headOffset int, t Type) ([]slotcodec.Value, error) {
	if t.Elem == nil || t.Elem.IsDynamic() {
		return nil, fmt.Errorf("abi: fixed array of dynamic elements unsupported")
	}
	elems := make([]slotcodec.Value, 0, t.Len)
	for i := 0; i < t.Len; i++ {
		off := headOffset + i*wordSize
		if off+wordSize > len(data) {
			break
		}
		v, err := slotcodec.DecodeScalar(data[off:off+wordSize], t.Elem.primitive())
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}

func decodeDynamicArray(data []byte, tailOffset int, t Type) ([]slotcodec.Value, error) {
	if t.Elem == nil || t.Elem.IsDynamic() {
		return nil, fmt.Errorf("abi: dynamic array of dynamic elements unsupported")
	}
	if tailOffset+wordSize > len(data) {
		return nil, fmt.Errorf("abi: tail offset out of range")
	}
	length := new(uint256.Int).SetBytes(data[tailOffset : tailOffset+wordSize]).Uint64()
	elems := make([]slotcodec.Value, 0, length)
	base := tailOffset + wordSize
	for i := uint64(0); i < length; i++ {
		off := base + int(i)*wordSize
		if off+wordSize > len(data) {
			break
		}
		v, err := slotcodec.DecodeScalar(data[off:off+wordSize], t.Elem.primitive())
		if err != nil {
			return nil, err
		}
		elems = append(elems, v)
	}
	return elems, nil
}
