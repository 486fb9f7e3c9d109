// Package keyoracle extracts candidate MappingKey values — the guesses the
// SlotResolver will try against mapping and dynamic-array roots — from
// every source spec.md §4.3 names: touched addresses, ABI-decoded calldata
// arguments, execution-trace stack values, and a small set of probable
// array indices. It never ranks or filters; that is SlotResolver's job.
package keyoracle

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/bytesentry/slotlens/abi"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/slotcodec"
)

func u256(v uint64) *uint256.Int { return new(uint256.Int).SetUint64(v) }

// MappingKey is a candidate key/index value, uniquely identified by its
// 32-byte form (spec.md §3).
type MappingKey struct {
	Hex     evmcommon.Hash
	Decoded slotcodec.Value
	Type    *slotcodec.Primitive // nil when untyped (e.g. a bare stack value)
}

// TraceStep is the minimal shape KeyOracle needs from an execution trace
// step: the operand stack at that point, already normalized to 32-byte
// words (mirrors eth/tracers/logger.StructLog.Stack, re-typed onto
// evmcommon.Hash instead of *big.Int since every value here is a fixed
// 256-bit word, not an arbitrary-precision number).
type TraceStep struct {
	Stack []evmcommon.Hash
}

// CalldataSource is one (selector-dispatchable ABI, raw calldata) pair to
// try extracting arguments from — the spec requires trying "all known ABIs
// of touched contracts plus the caller-supplied ABI" (§4.3.2) against one
// piece of calldata, since the oracle does not tell KeyOracle which ABI is
// authoritative.
type CalldataSource struct {
	ABI      abi.ABI
	Calldata []byte
}

// Collect runs every extraction source over the given inputs and returns
// the deduplicated candidate set. Dedup is by Hex; when both a typed and
// an untyped candidate share the same Hex, the typed one wins.
func Collect(touchedAddresses []evmcommon.Address, calldata []CalldataSource, trace []TraceStep) []MappingKey {
	byHex := make(map[evmcommon.Hash]MappingKey)

	add := func(k MappingKey) {
		existing, ok := byHex[k.Hex]
		if !ok || (existing.Type == nil && k.Type != nil) {
			byHex[k.Hex] = k
		}
	}

	for _, k := range fromAddresses(touchedAddresses) {
		add(k)
	}
	for _, src := range calldata {
		for _, k := range fromCalldata(src) {
			add(k)
		}
	}
	for _, k := range fromTrace(trace) {
		add(k)
	}
	for _, k := range smallIntegers() {
		add(k)
	}

	out := make([]MappingKey, 0, len(byHex))
	for _, k := range byHex {
		out = append(out, k)
	}
	return out
}

func fromAddresses(addrs []evmcommon.Address) []MappingKey {
	out := make([]MappingKey, 0, len(addrs))
	addrType := slotcodec.Primitive{Kind: slotcodec.KindAddress}
	for _, a := range addrs {
		out = append(out, MappingKey{
			Hex:     a.Hash(),
			Decoded: slotcodec.Value{Kind: slotcodec.KindAddress, Address: a},
			Type:    &addrType,
		})
	}
	return out
}

func fromCalldata(src CalldataSource) []MappingKey {
	method, ok := src.ABI.MethodBySelector(src.Calldata)
	if !ok {
		return nil
	}
	decoded, err := method.Inputs.Unpack(src.Calldata[4:])
	if err != nil {
		return nil
	}

	var out []MappingKey
	for _, d := range decoded {
		if len(d.Elements) > 0 {
			for _, elem := range d.Elements {
				out = append(out, keyFromScalarValue(elem))
			}
			continue
		}
		out = append(out, keyFromScalarValue(d.Scalar))
	}
	return out
}

func keyFromScalarValue(v slotcodec.Value) MappingKey {
	typ := v.Kind
	prim := &slotcodec.Primitive{Kind: typ}
	var hex evmcommon.Hash
	switch v.Kind {
	case slotcodec.KindAddress:
		hex = v.Address.Hash()
	case slotcodec.KindUint:
		if v.Uint != nil {
			hex = evmcommon.BytesToHash(v.Uint.Bytes())
		}
	case slotcodec.KindInt:
		if v.Int != nil {
			hex = encodeSignedHash(v.Int)
		}
	case slotcodec.KindBool:
		if v.Bool {
			hex = evmcommon.BytesToHash([]byte{1})
		}
	default:
		hex = evmcommon.BytesToHash(v.Raw)
	}
	return MappingKey{Hex: hex, Decoded: v, Type: prim}
}

// uint256Modulus is 2^256, used to fold a negative int256 into its
// two's-complement representation before hashing it into a 32-byte slot
// key — mirroring slotcodec.decodeSigned's inverse.
var uint256Modulus = new(big.Int).Lsh(big.NewInt(1), 256)

// encodeSignedHash returns v's two's-complement 32-byte encoding. A bare
// big.Int.Bytes() call drops the sign, so a negative value like -1 must be
// folded into the [0, 2^256) range first (-1 -> 2^256-1, i.e. 0xFF...FF)
// to match how the EVM actually stores signed mapping keys.
func encodeSignedHash(v *big.Int) evmcommon.Hash {
	if v.Sign() >= 0 {
		return evmcommon.BytesToHash(v.Bytes())
	}
	twos := new(big.Int).Add(uint256Modulus, v)
	return evmcommon.BytesToHash(twos.Bytes())
}

func fromTrace(steps []TraceStep) []MappingKey {
	seen := make(map[evmcommon.Hash]struct{})
	var out []MappingKey
	for _, step := range steps {
		for _, word := range step.Stack {
			if _, ok := seen[word]; ok {
				continue
			}
			seen[word] = struct{}{}
			out = append(out, MappingKey{
				Hex:     word,
				Decoded: slotcodec.Value{Kind: slotcodec.KindUnknown, Raw: word.Bytes()},
				Type:    nil, // stack values carry no declared type
			})
		}
	}
	return out
}

func smallIntegers() []MappingKey {
	out := make([]MappingKey, 0, 10)
	uintType := slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: 256}
	for i := uint64(0); i < 10; i++ {
		h := evmcommon.BytesToHash([]byte{byte(i)})
		out = append(out, MappingKey{
			Hex:     h,
			Decoded: slotcodec.Value{Kind: slotcodec.KindUint, Uint: u256(i)},
			Type:    &uintType,
		})
	}
	return out
}
