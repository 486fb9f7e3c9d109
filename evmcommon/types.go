// Package evmcommon holds the fixed-size value types shared across the
// storage-access labeling engine: 32-byte words (the spec's Hex256) and
// 20-byte account addresses.
package evmcommon

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

const (
	// HashLength is the expected length of a storage slot or word, in bytes.
	HashLength = 32
	// AddressLength is the expected length of an account address, in bytes.
	AddressLength = 20
)

// Hash is a 32-byte word: a storage slot address or a storage value. It
// implements the spec's Hex256.
type Hash [HashLength]byte

// BytesToHash left-pads b with zeroes and returns it as a Hash. If b is
// longer than HashLength, it is truncated from the left.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// BigToHash interprets big-endian bytes as a Hash.
func BigToHash(b []byte) Hash { return BytesToHash(b) }

// HexToHash decodes a hex string (with or without 0x prefix) into a Hash.
func HexToHash(s string) Hash { return BytesToHash(FromHex(s)) }

// Bytes returns the raw bytes of h.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the canonical lower-case 0x-prefixed hex representation.
func (h Hash) Hex() string { return "0x" + hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// IsZero reports whether h is the all-zero word.
func (h Hash) IsZero() bool { return h == Hash{} }

// Cmp performs a byte-wise comparison, returning -1, 0 or 1.
func (h Hash) Cmp(other Hash) int { return bytes.Compare(h[:], other[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(input []byte) error {
	raw := FromHex(string(input))
	if len(raw) != HashLength {
		return fmt.Errorf("evmcommon: invalid hash length %d, want %d", len(raw), HashLength)
	}
	copy(h[:], raw)
	return nil
}

// Address is a 20-byte account identifier.
type Address [AddressLength]byte

// BytesToAddress left-pads b with zeroes and returns it as an Address.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress decodes a hex string (with or without 0x prefix) into an Address.
func HexToAddress(s string) Address { return BytesToAddress(FromHex(s)) }

// Bytes returns the raw bytes of a.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the canonical lower-case 0x-prefixed hex representation.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Hash left-pads the address to a 32-byte word, as required when an address
// is used as a mapping key (spec.md §4.3.1).
func (a Address) Hash() Hash { return BytesToHash(a[:]) }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(input []byte) error {
	raw := FromHex(string(input))
	if len(raw) != AddressLength {
		return fmt.Errorf("evmcommon: invalid address length %d, want %d", len(raw), AddressLength)
	}
	copy(a[:], raw)
	return nil
}

// FromHex decodes a hex string, with or without the 0x/0X prefix, panicking
// is never acceptable here: malformed input yields a nil slice.
func FromHex(s string) []byte {
	if len(s) >= 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}
