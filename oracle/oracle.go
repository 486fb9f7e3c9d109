// Package oracle is the ambient adapter over the ExecutionOracle interface
// (spec.md §6): a JSON-RPC client that simulates or replays a transaction
// against a remote node and reports its access list, execution trace, and
// pre/post account state. The EVM and RPC layer are treated as an external
// black box by the rest of this module (spec.md §1); this package is the
// one place that actually talks to a node.
package oracle

import (
	"context"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/keyoracle"
)

// TransactionInput is one of the three shapes spec.md §6 allows: a raw
// call, an ABI-described call, or a historical transaction replay.
type TransactionInput struct {
	From  evmcommon.Address
	To    *evmcommon.Address
	Data  []byte
	Value *evmcommon.Hash

	// ABI-described call (alternative to Data).
	ABIJSON      []byte
	FunctionName string
	Args         []any

	// Historical replay (alternative to From/To/Data).
	TxHash *evmcommon.Hash
}

// CallArgs mirrors the JSON-RPC eth_call parameter object this adapter
// sends, matching the field names a node's internal ethapi.CallArgs
// expects (From, To, Data, Value as hex-encoded strings).
type CallArgs struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

// IntrinsicState is an account's nonce/balance/code at one point.
type IntrinsicState struct {
	Nonce    uint64
	Balance  evmcommon.Hash
	CodeHash evmcommon.Hash
}

// SlotSide selects which side of an execution a storage read targets.
type SlotSide int

const (
	SidePre SlotSide = iota
	SidePost
)

// SimulationResult is the ExecutionOracle's simulate() output (spec.md §6):
// the per-account access list, an execution trace usable by KeyOracle, and
// intrinsic state pre/post.
type SimulationResult struct {
	TxHash        evmcommon.Hash
	AccessList    map[evmcommon.Address][]evmcommon.Hash
	Trace         []keyoracle.TraceStep
	IntrinsicPre  map[evmcommon.Address]IntrinsicState
	IntrinsicPost map[evmcommon.Address]IntrinsicState
	Reverted      bool
	RevertReason  string
}

// ExecutionOracle is the black-box collaborator spec.md §6 defines. This
// package's Client implements it against a live JSON-RPC endpoint;
// analyses that already have a SimulationResult (e.g. from a test fixture)
// can implement it directly without a network round-trip.
type ExecutionOracle interface {
	Simulate(ctx context.Context, tx TransactionInput) (SimulationResult, error)
	StorageAt(ctx context.Context, account evmcommon.Address, slot evmcommon.Hash, side SlotSide) (evmcommon.Hash, error)
	Intrinsics(ctx context.Context, account evmcommon.Address, side SlotSide) (IntrinsicState, error)
}
