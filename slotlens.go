// Package slotlens is the module's public entry point: given a transaction
// (raw call, ABI-described call, or historical replay) it labels every
// storage slot the EVM touched with the declared variable, path, and
// decoded value that produced it, falling back to a synthetic label when
// no declared layout explains a slot. The heavy lifting — slot arithmetic,
// layout indexing, candidate-key extraction, resolution, and diffing —
// lives in slotcodec, layout, keyoracle, resolver, accessdiff, and
// assembler; this package only wires an ExecutionOracle and a
// LayoutSource together into that pipeline (engine.Engine) and exposes the
// two operations most callers need.
package slotlens

import (
	"context"
	"time"

	"github.com/erigontech/erigon-lib/log/v3"

	"github.com/bytesentry/slotlens/assembler"
	"github.com/bytesentry/slotlens/engine"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layoutcache"
	"github.com/bytesentry/slotlens/layoutsource"
	"github.com/bytesentry/slotlens/oracle"
	"github.com/bytesentry/slotlens/resolver"
)

// Re-exported so the common path only needs this package; adapters and
// advanced tuning still live in their own packages (oracle, layoutsource,
// layoutcache, resolver).
type (
	TransactionInput   = oracle.TransactionInput
	StorageAccessTrace = assembler.StorageAccessTrace
	Unsubscribe        = engine.Unsubscribe
)

// Analyzer is the module's public entry point (spec.md §6).
type Analyzer struct {
	eng *engine.Engine
}

// Option configures an Analyzer at construction time.
type Option func(*engine.Engine)

// WithCache attaches a bounded layout cache shared across analyses
// (spec.md §5). Without this option every call resolves layouts fresh.
func WithCache(cache *layoutcache.Cache) Option {
	return func(e *engine.Engine) { e.Cache = cache }
}

// WithStats attaches a caller-owned resolver.Stats so decode-mismatch,
// fallback, and ambiguous-match counts can be observed across many
// analyses sharing one Analyzer.
func WithStats(stats *resolver.Stats) Option {
	return func(e *engine.Engine) { e.Stats = stats }
}

// WithLogger attaches a logger that receives structured events for every
// analysis this Analyzer runs (SPEC_FULL.md AMBIENT STACK "Logging").
// Without this option, the Analyzer logs through log.Root().
func WithLogger(logger log.Logger) Option {
	return func(e *engine.Engine) { e.Logger = logger }
}

// New builds an Analyzer backed by a live JSON-RPC endpoint.
func New(rpcEndpoint string, layoutSource layoutsource.Source, chainID uint64, opts ...Option) *Analyzer {
	return NewWithOracle(oracle.NewClient(rpcEndpoint), layoutSource, chainID, opts...)
}

// NewWithOracle builds an Analyzer against a caller-supplied
// ExecutionOracle, bypassing the JSON-RPC client — the seam integration
// tests use to run analyses against a scripted SimulationResult.
func NewWithOracle(o oracle.ExecutionOracle, layoutSource layoutsource.Source, chainID uint64, opts ...Option) *Analyzer {
	eng := engine.New(o, layoutSource, nil, chainID, nil)
	eng.Stats = &resolver.Stats{}
	for _, opt := range opts {
		opt(eng)
	}
	return &Analyzer{eng: eng}
}

// TraceStorageAccess runs traceStorageAccess(tx) (spec.md §6).
func (a *Analyzer) TraceStorageAccess(ctx context.Context, tx TransactionInput) (map[evmcommon.Address]StorageAccessTrace, error) {
	return a.eng.TraceStorageAccess(ctx, tx)
}

// WatchStorage runs watchStorage(address, onChange, onError, pollInterval)
// (spec.md §6). A zero pollInterval uses engine.DefaultPollInterval.
func (a *Analyzer) WatchStorage(ctx context.Context, address evmcommon.Address, onChange func(StorageAccessTrace), onError func(error), pollInterval time.Duration) Unsubscribe {
	return a.eng.WatchStorage(ctx, address, onChange, onError, pollInterval)
}

// Stats returns the resolver.Stats backing this Analyzer, for callers that
// did not supply their own via WithStats.
func (a *Analyzer) Stats() *resolver.Stats {
	return a.eng.Stats
}
