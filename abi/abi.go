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
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/bytesentry/slotlens/evmcommon"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Method is one function entry of a contract ABI.
type Method struct {
	Name   string    `json:"name"`
	Type   string    `json:"type"`
	Inputs Arguments `json:"inputs"`
}

// Sig returns the canonical signature string used to derive the 4-byte
// selector, e.g. "transfer(address,uint256)".
func (m Method) Sig() string {
	types := make([]string, len(m.Inputs))
	for i, in := range m.Inputs {
		types[i] = in.Type
	}
	return fmt.Sprintf("%s(%s)", m.Name, strings.Join(types, ","))
}

// Selector returns the first 4 bytes of keccak256(Sig()).
func (m Method) Selector() [4]byte {
	var sel [4]byte
	copy(sel[:], evmcommon.Keccak256([]byte(m.Sig())))
	return sel
}

// ABI holds a contract's callable methods, indexed by name and by 4-byte
// selector for fast calldata dispatch.
type ABI struct {
	Methods    map[string]Method
	bySelector map[[4]byte]Method
}

type rawEntry struct {
	Type   string    `json:"type"`
	Name   string    `json:"name"`
	Inputs Arguments `json:"inputs"`
}

// JSON parses a standard Solidity ABI JSON document into an ABI, keeping
// only function entries (events/errors/constructor are irrelevant to
// KeyOracle's calldata decoding).
func JSON(data []byte) (ABI, error) {
	var entries []rawEntry
	if err := jsonAPI.Unmarshal(data, &entries); err != nil {
		return ABI{}, fmt.Errorf("abi: parse: %w", err)
	}

	result := ABI{
		Methods:    make(map[string]Method),
		bySelector: make(map[[4]byte]Method),
	}
	for _, e := range entries {
		if e.Type != "" && e.Type != "function" {
			continue
		}
		m := Method{Name: e.Name, Type: "function", Inputs: e.Inputs}
		result.Methods[m.Name] = m
		result.bySelector[m.Selector()] = m
	}
	return result, nil
}

// MethodBySelector looks up the method whose 4-byte selector matches the
// leading bytes of calldata. ok is false if calldata is too short or no
// method in this ABI matches.
func (a ABI) MethodBySelector(calldata []byte) (Method, bool) {
	if len(calldata) < 4 {
		return Method{}, false
	}
	var sel [4]byte
	copy(sel[:], calldata[:4])
	m, ok := a.bySelector[sel]
	return m, ok
}
