package engine

import (
	"context"
	"sync"
	"time"

	"github.com/bytesentry/slotlens/assembler"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/oracle"
)

// DefaultPollInterval is used by WatchStorage when the caller passes zero.
const DefaultPollInterval = 4 * time.Second

// Unsubscribe stops a WatchStorage subscription. Calling it more than once
// is a no-op (spec.md §6 "Unsubscribe idempotent").
type Unsubscribe func()

// UnsupportedOracle is reported via onError when the configured
// ExecutionOracle cannot poll for new blocks (it does not implement
// oracle.BlockWatcher) — WatchStorage still returns a valid, inert
// Unsubscribe rather than panicking.
type UnsupportedOracle struct{}

func (e *UnsupportedOracle) Error() string {
	return "engine: configured oracle does not support block polling"
}

// WatchStorage is the spec's watchStorage(address, onChange, onError,
// pollInterval?): it subscribes to new blocks, runs TraceStorageAccess for
// every transaction touching address, and invokes onChange with that
// account's StorageAccessTrace (spec.md §6). A poll failure is reported to
// onError and retried on the next tick rather than ending the
// subscription — the ticker loop itself never exits except via
// Unsubscribe or ctx cancellation (SUPPLEMENTED "watchStorage resilience",
// grounded in the teacher's version-monitor ticker loop).
func (e *Engine) WatchStorage(ctx context.Context, address evmcommon.Address, onChange func(assembler.StorageAccessTrace), onError func(error), pollInterval time.Duration) Unsubscribe {
	watcher, ok := e.Oracle.(oracle.BlockWatcher)
	if !ok {
		if onError != nil {
			onError(&UnsupportedOracle{})
		}
		return func() {}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	go e.watchLoop(watchCtx, watcher, address, onChange, onError, pollInterval)

	return func() { once.Do(cancel) }
}

func (e *Engine) watchLoop(ctx context.Context, watcher oracle.BlockWatcher, address evmcommon.Address, onChange func(assembler.StorageAccessTrace), onError func(error), pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastBlock uint64
	for {
		select {
		case <-ticker.C:
			lastBlock = e.pollOnce(ctx, watcher, address, lastBlock, onChange, onError)
		case <-ctx.Done():
			return
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context, watcher oracle.BlockWatcher, address evmcommon.Address, lastBlock uint64, onChange func(assembler.StorageAccessTrace), onError func(error)) uint64 {
	latest, txs, err := watcher.PollNewTransactions(ctx, address, lastBlock)
	if err != nil {
		e.Logger.Warn("slotlens: block poll failed, retrying next tick", "address", address.Hex(), "err", err)
		if onError != nil {
			onError(err)
		}
		return lastBlock
	}

	for _, tx := range txs {
		traces, err := e.TraceStorageAccess(ctx, tx)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		if trace, ok := traces[address]; ok && onChange != nil {
			onChange(trace)
		}
	}
	return latest
}
