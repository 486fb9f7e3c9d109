package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/assembler"
	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/oracle"
	"github.com/bytesentry/slotlens/slotcodec"
)

// watchableOracle bundles fakeOracle with a scripted BlockWatcher so
// WatchStorage's polling loop can be exercised without a real node.
type watchableOracle struct {
	*fakeOracle
	polls []pollResult
	next  int
}

type pollResult struct {
	latest uint64
	txs    []oracle.TransactionInput
	err    error
}

func (w *watchableOracle) PollNewTransactions(ctx context.Context, address evmcommon.Address, lastBlock uint64) (uint64, []oracle.TransactionInput, error) {
	if w.next >= len(w.polls) {
		return lastBlock, nil, nil
	}
	r := w.polls[w.next]
	w.next++
	return r.latest, r.txs, r.err
}

func TestWatchStorageDeliversOnChange(t *testing.T) {
	holder := evmcommon.HexToAddress("0xdddd")
	v := &layout.StorageVariable{
		Label: "flag", BaseSlot: evmcommon.HexToHash("0x01"), Encoding: layout.EncodingInplace, Size: 32,
		Type: &layout.TypeDescriptor{Kind: layout.TypePrimitive, Primitive: slotcodec.Primitive{Kind: slotcodec.KindBool}},
	}
	slot := v.BaseSlot
	sim := oracle.SimulationResult{
		AccessList:    map[evmcommon.Address][]evmcommon.Hash{holder: {slot}},
		IntrinsicPre:  map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
		IntrinsicPost: map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
	}

	txHash := evmcommon.HexToHash("0x99")
	o := &watchableOracle{
		fakeOracle: &fakeOracle{
			sim:  sim,
			pre:  map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x00")},
			post: map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x01")},
		},
		polls: []pollResult{
			{latest: 1, txs: []oracle.TransactionInput{{TxHash: &txHash}}},
		},
	}
	ls := &fakeLayoutSource{vars: []*layout.StorageVariable{v}}
	e := New(o, ls, nil, 1, nil)

	changes := make(chan assembler.StorageAccessTrace, 1)
	errs := make(chan error, 1)
	unsub := e.WatchStorage(context.Background(), holder,
		func(tr assembler.StorageAccessTrace) { changes <- tr },
		func(err error) { errs <- err },
		20*time.Millisecond,
	)
	defer unsub()

	select {
	case tr := <-changes:
		require.Len(t, tr.Writes[slot], 1)
	case err := <-errs:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onChange")
	}
}

func TestWatchStorageReportsUnsupportedOracle(t *testing.T) {
	holder := evmcommon.HexToAddress("0xeeee")
	e := New(&fakeOracle{}, nil, nil, 1, nil)

	errs := make(chan error, 1)
	unsub := e.WatchStorage(context.Background(), holder, nil, func(err error) { errs <- err }, 0)
	defer unsub()

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected an immediate UnsupportedOracle error")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	holder := evmcommon.HexToAddress("0xffff")
	o := &watchableOracle{fakeOracle: &fakeOracle{}}
	e := New(o, nil, nil, 1, nil)

	unsub := e.WatchStorage(context.Background(), holder, nil, nil, 10*time.Millisecond)
	require.NotPanics(t, func() {
		unsub()
		unsub()
	})
}
