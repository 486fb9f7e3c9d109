// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package evmcommon

import (
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"
)

// keccakState wraps sha3.state. In addition to the usual hash methods, it
// also supports Read to get a variable amount of data from the hash state.
// Read is faster than Sum because it doesn't copy the internal state.
type keccakState interface {
	hash.Hash
	Read([]byte) (int, error)
}

var hasherPool = sync.Pool{
	New: func() any {
		return sha3.NewLegacyKeccak256().(keccakState)
	},
}

// Keccak256 returns the Keccak-256 digest of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := hasherPool.Get().(keccakState)
	h.Reset()
	defer hasherPool.Put(h)

	for _, b := range data {
		h.Write(b)
	}
	buf := make([]byte, HashLength)
	h.Read(buf)
	return buf
}

// Keccak256Hash returns the Keccak-256 digest of the concatenation of data
// as a Hash.
func Keccak256Hash(data ...[]byte) Hash {
	h := hasherPool.Get().(keccakState)
	h.Reset()
	defer hasherPool.Put(h)

	for _, b := range data {
		h.Write(b)
	}
	var out Hash
	h.Read(out[:])
	return out
}
