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

// Package abi provides just enough ABI-JSON parsing and calldata argument
// unpacking to feed KeyOracle's calldata-argument extraction (spec.md
// §4.3.2): selector-keyed method lookup, and scalar/array argument
// unpacking into slotcodec.Value. It does not implement full ABI encoding
// (packing, tuples, nested dynamic types) since the labeling engine never
// needs to construct calldata, only to read it.
package abi

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytesentry/slotlens/slotcodec"
)

// Kind enumerates the ABI type categories this package can unpack.
type Kind int

const (
	KindUint Kind = iota
	KindInt
	KindBool
	KindAddress
	KindBytesN
	KindBytes
	KindString
	KindSlice // dynamic array, T[]
	KindArray // fixed-size array, T[k]
)

// Type is a parsed ABI type string (e.g. "uint256", "address[]", "bytes32").
type Type struct {
	Kind Kind
	Bits int // uint/int bit width as declared; bytesN stores 8*N bits
	Elem *Type
	Len  int // fixed array length
	Raw  string
}

// ParseType parses a Solidity ABI type string into a Type.
func ParseType(s string) (Type, error) {
	if strings.HasSuffix(s, "]") {
		open := strings.LastIndexByte(s, '[')
		if open < 0 {
			return Type{}, fmt.Errorf("abi: malformed array type %q", s)
		}
		elem, err := ParseType(s[:open])
		if err != nil {
			return Type{}, err
		}
		inside := s[open+1 : len(s)-1]
		if inside == "" {
			return Type{Kind: KindSlice, Elem: &elem, Raw: s}, nil
		}
		n, err := strconv.Atoi(inside)
		if err != nil {
			return Type{}, fmt.Errorf("abi: malformed array length in %q: %w", s, err)
		}
		return Type{Kind: KindArray, Elem: &elem, Len: n, Raw: s}, nil
	}

	switch {
	case s == "address":
		return Type{Kind: KindAddress, Raw: s}, nil
	case s == "bool":
		return Type{Kind: KindBool, Raw: s}, nil
	case s == "string":
		return Type{Kind: KindString, Raw: s}, nil
	case s == "bytes":
		return Type{Kind: KindBytes, Raw: s}, nil
	case strings.HasPrefix(s, "uint"):
		bits, err := bitsSuffix(s, "uint", 256)
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindUint, Bits: bits, Raw: s}, nil
	case strings.HasPrefix(s, "int"):
		bits, err := bitsSuffix(s, "int", 256)
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindInt, Bits: bits, Raw: s}, nil
	case strings.HasPrefix(s, "bytes"):
		n, err := bitsSuffix(s, "bytes", 32)
		if err != nil {
			return Type{}, err
		}
		return Type{Kind: KindBytesN, Bits: n * 8, Raw: s}, nil
	default:
		return Type{}, fmt.Errorf("abi: unsupported type %q", s)
	}
}

func bitsSuffix(s, prefix string, defaultVal int) (int, error) {
	suffix := s[len(prefix):]
	if suffix == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return 0, fmt.Errorf("abi: invalid width suffix in %q: %w", s, err)
	}
	return n, nil
}

// IsDynamic reports whether the type's ABI head-word is a pointer to tail
// data rather than the value itself.
func (t Type) IsDynamic() bool {
	switch t.Kind {
	case KindBytes, KindString, KindSlice:
		return true
	case KindArray:
		return t.Elem != nil && t.Elem.IsDynamic()
	default:
		return false
	}
}

// primitive maps an ABI scalar Type to the slotcodec.Primitive used to
// decode its 32-byte word.
func (t Type) primitive() slotcodec.Primitive {
	switch t.Kind {
	case KindUint:
		return slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: t.Bits}
	case KindInt:
		return slotcodec.Primitive{Kind: slotcodec.KindInt, Bits: t.Bits}
	case KindBool:
		return slotcodec.Primitive{Kind: slotcodec.KindBool}
	case KindAddress:
		return slotcodec.Primitive{Kind: slotcodec.KindAddress}
	case KindBytesN:
		return slotcodec.Primitive{Kind: slotcodec.KindBytesN, Bits: t.Bits}
	default:
		return slotcodec.Primitive{Kind: slotcodec.KindUnknown}
	}
}
