// Package slotcodec implements the EVM storage-slot derivation algebra:
// keccak-based mapping and dynamic-array addressing, struct-member
// offsets, packed sub-word extraction, and scalar decoding. Every
// function here is pure and stateless; it is the single authority other
// packages call to go from (base slot, path, keys) to a concrete slot, and
// back from a raw word to a typed value.
package slotcodec

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/evmcommon"
)

// PrimitiveKind enumerates the scalar value-types a packed or whole-word
// variable can declare.
type PrimitiveKind int

const (
	KindUint PrimitiveKind = iota
	KindInt
	KindBool
	KindAddress
	KindBytesN
	KindEnum
	KindUnknown
)

func (k PrimitiveKind) String() string {
	switch k {
	case KindUint:
		return "uint"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindAddress:
		return "address"
	case KindBytesN:
		return "bytesN"
	case KindEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Primitive describes a scalar type: its kind and, for integers, its bit
// width (8..256 in steps of 8).
type Primitive struct {
	Kind PrimitiveKind
	Bits int
}

// Value is a decoded scalar. Exactly one of the typed fields is meaningful,
// selected by Kind.
type Value struct {
	Kind    PrimitiveKind
	Uint    *uint256.Int
	Int     *big.Int
	Bool    bool
	Address evmcommon.Address
	Raw     []byte // bytesN, or the raw bytes backing Kind == KindUnknown
}

// String renders the value the way TraceAssembler's fullExpression
// formatting requires: addresses as hex, numerics as decimal, everything
// else as a best-effort string.
func (v Value) String() string {
	switch v.Kind {
	case KindUint:
		if v.Uint != nil {
			return v.Uint.Dec()
		}
		return "0"
	case KindInt:
		if v.Int != nil {
			return v.Int.String()
		}
		return "0"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindAddress:
		return v.Address.Hex()
	case KindBytesN, KindEnum:
		return fmt.Sprintf("0x%x", v.Raw)
	default:
		return fmt.Sprintf("0x%x", v.Raw)
	}
}

// DecodeScalar decodes the low-address-first sub-word bytes occupied by a
// primitive-typed variable into a typed Value. raw is normally the
// typ.ByteWidth() bytes extracted via ExtractSubWord; a full 32-byte word
// is also accepted (addresses then take the low 20 bytes, bytesN the
// leading N).
func DecodeScalar(raw []byte, typ Primitive) (Value, error) {
	switch typ.Kind {
	case KindUint:
		if typ.Bits <= 0 || typ.Bits > 256 || typ.Bits%8 != 0 {
			return Value{}, fmt.Errorf("slotcodec: invalid uint bit width %d", typ.Bits)
		}
		u := new(uint256.Int).SetBytes(raw)
		return Value{Kind: KindUint, Uint: u}, nil
	case KindInt:
		if typ.Bits <= 0 || typ.Bits > 256 || typ.Bits%8 != 0 {
			return Value{}, fmt.Errorf("slotcodec: invalid int bit width %d", typ.Bits)
		}
		return Value{Kind: KindInt, Int: decodeSigned(raw, typ.Bits)}, nil
	case KindBool:
		nonZero := false
		for _, b := range raw {
			if b != 0 {
				nonZero = true
				break
			}
		}
		return Value{Kind: KindBool, Bool: nonZero}, nil
	case KindAddress:
		// Addresses occupy the low 20 bytes of their sub-word.
		if len(raw) < evmcommon.AddressLength {
			return Value{}, fmt.Errorf("slotcodec: address sub-word too short: %d bytes", len(raw))
		}
		addr := evmcommon.BytesToAddress(raw[len(raw)-evmcommon.AddressLength:])
		return Value{Kind: KindAddress, Address: addr}, nil
	case KindBytesN:
		n := typ.Bits / 8
		if n <= 0 || n > len(raw) {
			n = len(raw)
		}
		out := make([]byte, n)
		copy(out, raw[:n])
		return Value{Kind: KindBytesN, Raw: out}, nil
	case KindEnum:
		out := make([]byte, len(raw))
		copy(out, raw)
		return Value{Kind: KindEnum, Raw: out}, nil
	default:
		out := make([]byte, len(raw))
		copy(out, raw)
		return Value{Kind: KindUnknown, Raw: out}, nil
	}
}

// decodeSigned interprets raw (little-address-first, i.e. the sub-word
// slice already isolated from the full word) as a two's-complement signed
// integer of the given bit width.
func decodeSigned(raw []byte, bits int) *big.Int {
	u := new(big.Int).SetBytes(raw)
	signBit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if u.Cmp(signBit) >= 0 {
		modulus := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		u.Sub(u, modulus)
	}
	return u
}

// ByteWidth returns the declared byte width of a primitive type.
func (p Primitive) ByteWidth() int {
	switch p.Kind {
	case KindUint, KindInt, KindEnum:
		if p.Bits <= 0 {
			return 32
		}
		return p.Bits / 8
	case KindBool:
		return 1
	case KindAddress:
		return evmcommon.AddressLength
	case KindBytesN:
		if p.Bits <= 0 {
			return 32
		}
		return p.Bits / 8
	default:
		return 32
	}
}
