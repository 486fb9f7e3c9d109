// Package engine wires the leaf components (slotcodec, layout, keyoracle,
// resolver, accessdiff, assembler) against the ExecutionOracle and
// LayoutSource adapters to implement the module's public API (spec.md §6):
// TraceStorageAccess for one-shot analysis, WatchStorage for a
// new-block-driven subscription.
package engine

import (
	"context"
	"sync"

	"github.com/erigontech/erigon-lib/log/v3"
	"golang.org/x/sync/errgroup"

	"github.com/bytesentry/slotlens/abi"
	"github.com/bytesentry/slotlens/accessdiff"
	"github.com/bytesentry/slotlens/assembler"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/keyoracle"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/layoutcache"
	"github.com/bytesentry/slotlens/layoutsource"
	"github.com/bytesentry/slotlens/oracle"
	"github.com/bytesentry/slotlens/resolver"
)

// Engine is the analysis entry point: one instance per chain, reused across
// many one-shot analyses and watch subscriptions. It holds no per-analysis
// state beyond the shared, immutable-once-published LayoutIndex cache
// (spec.md §5).
type Engine struct {
	Oracle       oracle.ExecutionOracle
	LayoutSource layoutsource.Source
	Cache        *layoutcache.Cache
	ChainID      uint64

	// Stats tallies resolution outcomes worth watching across many
	// analyses — decode mismatches, fallback labels, ambiguous matches
	// (spec.md §9, SUPPLEMENTED "Metrics counters"). The zero value is
	// ready to use; nil is also safe (every Record* is a no-op).
	Stats *resolver.Stats

	// Logger receives per-analysis structured log events: Debug for
	// per-slot resolution detail, Warn for degraded paths
	// (LayoutUnavailable, OracleGap, DecodeMismatch), Error for
	// MalformedLayout, after which the account degrades to fallback labels
	// (SPEC_FULL.md AMBIENT STACK "Logging").
	// Every call site here logs through this field, never through the
	// log package's root-logger convenience functions.
	Logger log.Logger
}

// New builds an Engine. cache may be nil, in which case layouts are
// resolved fresh on every call (the deterministic-testing opt-out spec.md
// §9 calls for). A nil logger falls back to log.Root() so callers that
// don't care about logging don't have to construct one.
func New(o oracle.ExecutionOracle, ls layoutsource.Source, cache *layoutcache.Cache, chainID uint64, logger log.Logger) *Engine {
	if logger == nil {
		logger = log.Root()
	}
	return &Engine{Oracle: o, LayoutSource: ls, Cache: cache, ChainID: chainID, Logger: logger}
}

// accountContext bundles what TraceStorageAccess needs per touched account
// once its layout has been resolved.
type accountContext struct {
	idx       *layout.Index
	sourceABI abi.ABI
}

// TraceStorageAccess is the spec's traceStorageAccess(tx): a one-shot
// analysis producing a StorageAccessTrace per touched account (spec.md §6).
// On SimulationReverted, the partial per-account traces gathered from the
// oracle's best-effort access list are returned alongside the error.
func (e *Engine) TraceStorageAccess(ctx context.Context, tx oracle.TransactionInput) (map[evmcommon.Address]assembler.StorageAccessTrace, error) {
	if err := ValidateTransactionInput(tx); err != nil {
		return nil, err
	}

	sim, err := e.Oracle.Simulate(ctx, tx)
	if reverted, ok := err.(*oracle.SimulationReverted); ok {
		partial, buildErr := e.assembleAll(ctx, tx, reverted.Partial)
		if buildErr != nil {
			return nil, err
		}
		return partial, err
	}
	if err != nil {
		return nil, err
	}
	return e.assembleAll(ctx, tx, sim)
}

// assembleAll builds one StorageAccessTrace per touched account. Per-account
// work shares no mutable state beyond the read-only candidate list and the
// layout cache (which is safe for concurrent use), so accounts are analyzed
// concurrently (spec.md §5 "independent per-account analyses may run in
// parallel"), grounded in the teacher's errgroup fan-out-over-independent-
// units idiom (e.g. downloader's per-file worker groups).
func (e *Engine) assembleAll(ctx context.Context, tx oracle.TransactionInput, sim oracle.SimulationResult) (map[evmcommon.Address]assembler.StorageAccessTrace, error) {
	accounts, err := e.resolveAccountContexts(ctx, sim)
	if err != nil {
		return nil, err
	}

	candidates := e.collectCandidates(tx, sim, accounts)

	var mu sync.Mutex
	out := make(map[evmcommon.Address]assembler.StorageAccessTrace, len(sim.AccessList))

	g, gCtx := errgroup.WithContext(ctx)
	for addr, slots := range sim.AccessList {
		addr, slots := addr, slots
		g.Go(func() error {
			acct := accounts[addr]

			snapshots, err := e.fetchSnapshots(gCtx, addr, slots)
			if err != nil {
				return err
			}

			intrinsic := accessdiff.IntrinsicDiff{
				Pre:  intrinsicSnapshot(sim.IntrinsicPre[addr]),
				Post: intrinsicSnapshot(sim.IntrinsicPost[addr]),
			}
			accountDiff := accessdiff.Diff(snapshots, intrinsic)

			matchesBySlot := make(map[evmcommon.Hash][]resolver.SlotMatch, len(slots))
			for _, slot := range slots {
				matches := resolver.Resolve(acct.idx, slot, candidates)
				survivors := e.dropUnverified(matches)
				e.Logger.Debug("slotlens: resolved slot", "address", addr.Hex(), "slot", slot.Hex(), "matches", len(survivors))
				matchesBySlot[slot] = survivors
			}

			accesses := append(append([]accessdiff.SlotAccess{}, accountDiff.Reads...), accountDiff.Writes...)
			trace := assembler.Assemble(accesses, matchesBySlot, intrinsic)

			mu.Lock()
			out[addr] = trace
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// dropUnverified filters out any SlotMatch that fails the I2 round-trip
// check, then tallies the surviving set: a fallback label, or more than
// one surviving match, both get recorded (spec.md §7, §9).
func (e *Engine) dropUnverified(matches []resolver.SlotMatch) []resolver.SlotMatch {
	out := matches[:0]
	for _, m := range matches {
		if resolver.Verify(m) {
			out = append(out, m)
		} else {
			e.Stats.RecordDecodeMismatch()
			e.Logger.Warn("slotlens: decode mismatch, dropping candidate match", "slot", m.Slot.Hex(), "variable", m.Variable.Label)
		}
	}
	if len(out) > 1 {
		e.Stats.RecordAmbiguous()
	}
	for _, m := range out {
		if resolver.IsFallback(m) {
			e.Stats.RecordFallback()
		}
	}
	return out
}

// resolveAccountContexts fetches (or reuses cached) layouts for every
// touched account. A missing or malformed layout degrades that account to
// an empty index — every one of its slots then falls through to the
// resolver's fallback label — rather than failing the whole analysis
// (spec.md §7 "LayoutUnavailable"/"MalformedLayout: fatal to this
// account's labeling ... analysis of other accounts continues").
func (e *Engine) resolveAccountContexts(ctx context.Context, sim oracle.SimulationResult) (map[evmcommon.Address]accountContext, error) {
	var mu sync.Mutex
	out := make(map[evmcommon.Address]accountContext, len(sim.AccessList))

	g, gCtx := errgroup.WithContext(ctx)
	for addr := range sim.AccessList {
		addr := addr
		g.Go(func() error {
			idx, sourceABI := e.layoutFor(gCtx, addr, sim.IntrinsicPost[addr].CodeHash)
			mu.Lock()
			out[addr] = accountContext{idx: idx, sourceABI: sourceABI}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // layoutFor never returns an error; it degrades to an empty index instead.
	return out, nil
}

// layoutFor resolves addr's layout.Index, publishing a freshly fetched one
// to the cache. Any failure — no source configured, LayoutUnavailable, or
// MalformedLayout — degrades to an empty index rather than aborting the
// whole analysis (spec.md §7).
func (e *Engine) layoutFor(ctx context.Context, addr evmcommon.Address, codeHash evmcommon.Hash) (*layout.Index, abi.ABI) {
	key := layoutcache.Key{ChainID: e.ChainID, Address: addr, CodeHash: codeHash}
	if idx, ok := e.Cache.Get(key); ok {
		return idx, abi.ABI{}
	}

	empty, _ := layout.Build(addr.Hex(), nil)
	if e.LayoutSource == nil {
		return empty, abi.ABI{}
	}

	fetched, err := e.LayoutSource.LayoutFor(ctx, addr)
	if err != nil {
		e.Logger.Warn("slotlens: layout unavailable, degrading account to fallback labels", "address", addr.Hex(), "err", err)
		return empty, abi.ABI{}
	}

	idx, err := layout.Build(addr.Hex(), fetched.Variables)
	if err != nil {
		e.Logger.Error("slotlens: malformed layout, degrading account to fallback labels", "address", addr.Hex(), "err", err)
		return empty, fetched.ABI
	}

	e.Cache.Publish(key, idx)
	return idx, fetched.ABI
}

// collectCandidates runs KeyOracle over every source spec.md §4.3 names:
// touched addresses, calldata decoded against every touched contract's ABI,
// execution-trace stack values, and small integer constants. The spec
// requires trying the calldata against every touched contract's ABI, since
// the oracle does not say which one is authoritative (§4.3.2).
func (e *Engine) collectCandidates(tx oracle.TransactionInput, sim oracle.SimulationResult, accounts map[evmcommon.Address]accountContext) []keyoracle.MappingKey {
	addrs := make([]evmcommon.Address, 0, len(accounts))
	for a := range accounts {
		addrs = append(addrs, a)
	}

	var calldataSources []keyoracle.CalldataSource
	if len(tx.Data) >= 4 {
		for _, acct := range accounts {
			if len(acct.sourceABI.Methods) > 0 {
				calldataSources = append(calldataSources, keyoracle.CalldataSource{ABI: acct.sourceABI, Calldata: tx.Data})
			}
		}
	}
	return keyoracle.Collect(addrs, calldataSources, sim.Trace)
}

func (e *Engine) fetchSnapshots(ctx context.Context, addr evmcommon.Address, slots []evmcommon.Hash) ([]accessdiff.SlotSnapshot, error) {
	out := make([]accessdiff.SlotSnapshot, 0, len(slots))
	for _, slot := range slots {
		snap := accessdiff.SlotSnapshot{Slot: slot}
		pre, err := e.Oracle.StorageAt(ctx, addr, slot, oracle.SidePre)
		if err != nil {
			snap.PreGap = true
			e.Logger.Warn("slotlens: oracle gap reading pre-state", "address", addr.Hex(), "slot", slot.Hex(), "err", err)
		} else {
			snap.Pre = pre
		}
		post, err := e.Oracle.StorageAt(ctx, addr, slot, oracle.SidePost)
		if err != nil {
			snap.PostGap = true
			e.Logger.Warn("slotlens: oracle gap reading post-state", "address", addr.Hex(), "slot", slot.Hex(), "err", err)
		} else {
			snap.Post = post
		}
		out = append(out, snap)
	}
	return out, nil
}

func intrinsicSnapshot(s oracle.IntrinsicState) accessdiff.IntrinsicSnapshot {
	return accessdiff.IntrinsicSnapshot{Nonce: s.Nonce, Balance: s.Balance, CodeHash: s.CodeHash}
}

// UnknownTransactionShape is returned when a TransactionInput mixes fields
// from more than one of its three mutually-exclusive shapes (spec.md §6).
type UnknownTransactionShape struct{}

func (e *UnknownTransactionShape) Error() string {
	return "engine: transaction input must not mix a raw call, an ABI-described call, and a TxHash replay"
}

// ValidateTransactionInput checks that tx doesn't mix the mutually
// exclusive input shapes spec.md §6 documents: a historical replay
// (TxHash), an ABI-described call (ABIJSON/FunctionName), or a raw call
// (From/To/Data/Value). A raw call with empty Data — a plain value
// transfer — is a legitimate instance of the third shape, not "no shape
// at all", so only combinations across shapes are rejected.
func ValidateTransactionInput(tx oracle.TransactionInput) error {
	hasReplay := tx.TxHash != nil
	hasABICall := len(tx.ABIJSON) > 0 || tx.FunctionName != ""
	hasRawData := len(tx.Data) > 0

	if hasReplay && (hasABICall || hasRawData) {
		return &UnknownTransactionShape{}
	}
	if hasABICall && hasRawData {
		return &UnknownTransactionShape{}
	}
	return nil
}
