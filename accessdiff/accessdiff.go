// Package accessdiff implements AccessDiffer: per-account classification of
// observed slots into reads (value unchanged) and writes (value changed),
// plus intrinsic account-state diffing (nonce, balance, code hash). It is
// oblivious to storage layout; its output feeds TraceAssembler.
package accessdiff

import "github.com/bytesentry/slotlens/evmcommon"

// SlotAccess is one observed slot with its pre/post transaction words
// (spec.md §3). Modified reports whether the value actually changed.
type SlotAccess struct {
	Slot evmcommon.Hash
	Pre  evmcommon.Hash
	Post evmcommon.Hash

	// OracleGap marks a slot where the oracle reported only one side
	// (pre or post); the absent side was treated as the zero word
	// (spec.md §4.7).
	OracleGap bool
}

// Modified reports whether Pre != Post.
func (a SlotAccess) Modified() bool { return a.Pre != a.Post }

// IntrinsicSnapshot is an account's non-storage state at one point in time.
type IntrinsicSnapshot struct {
	Nonce    uint64
	Balance  evmcommon.Hash // wei, as a 32-byte word to avoid a *big.Int dependency here
	CodeHash evmcommon.Hash
}

// IntrinsicDiff is the pre/post change in an account's nonce, balance, and
// code hash (spec.md §3, §4.5).
type IntrinsicDiff struct {
	Pre  IntrinsicSnapshot
	Post IntrinsicSnapshot
}

// NonceChanged, BalanceChanged, CodeChanged report whether each field
// differs between Pre and Post.
func (d IntrinsicDiff) NonceChanged() bool   { return d.Pre.Nonce != d.Post.Nonce }
func (d IntrinsicDiff) BalanceChanged() bool { return d.Pre.Balance != d.Post.Balance }
func (d IntrinsicDiff) CodeChanged() bool    { return d.Pre.CodeHash != d.Post.CodeHash }

// AccountDiff is the classified per-account result of one analysis: every
// accessed slot split into reads and writes (spec.md invariant I3: disjoint
// sets whose union is the full access list), plus the intrinsic diff.
type AccountDiff struct {
	Reads     []SlotAccess
	Writes    []SlotAccess
	Intrinsic IntrinsicDiff
}

// SlotSnapshot is one (slot, pre, post, gap) tuple as reported by the
// ExecutionOracle for a single account — the differ's raw input.
type SlotSnapshot struct {
	Slot    evmcommon.Hash
	Pre     evmcommon.Hash
	Post    evmcommon.Hash
	PreGap  bool // oracle did not report a pre-state value
	PostGap bool // oracle did not report a post-state value
}

// Diff classifies every slot in the access list into reads or writes. A
// slot whose value is unchanged is a read; a slot whose value changed is a
// write (I3). Missing sides (PreGap/PostGap) are treated as the zero word
// and the resulting SlotAccess carries OracleGap.
func Diff(slots []SlotSnapshot, intrinsic IntrinsicDiff) AccountDiff {
	out := AccountDiff{Intrinsic: intrinsic}
	for _, s := range slots {
		access := SlotAccess{Slot: s.Slot, Pre: s.Pre, Post: s.Post, OracleGap: s.PreGap || s.PostGap}
		if s.PreGap {
			access.Pre = evmcommon.Hash{}
		}
		if s.PostGap {
			access.Post = evmcommon.Hash{}
		}
		if access.Modified() {
			out.Writes = append(out.Writes, access)
		} else {
			out.Reads = append(out.Reads, access)
		}
	}
	return out
}
