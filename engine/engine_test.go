package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/layoutcache"
	"github.com/bytesentry/slotlens/layoutsource"
	"github.com/bytesentry/slotlens/oracle"
	"github.com/bytesentry/slotlens/slotcodec"
)

// fakeOracle is a deterministic stand-in for a JSON-RPC node: it serves a
// single hard-coded SimulationResult and answers StorageAt from a fixed
// pre/post map, exercising the ExecutionOracle interface without a network
// round-trip (spec.md §6 allows any ExecutionOracle implementation).
type fakeOracle struct {
	sim  oracle.SimulationResult
	pre  map[evmcommon.Hash]evmcommon.Hash
	post map[evmcommon.Hash]evmcommon.Hash
}

func (f *fakeOracle) Simulate(ctx context.Context, tx oracle.TransactionInput) (oracle.SimulationResult, error) {
	return f.sim, nil
}

func (f *fakeOracle) StorageAt(ctx context.Context, account evmcommon.Address, slot evmcommon.Hash, side oracle.SlotSide) (evmcommon.Hash, error) {
	if side == oracle.SidePre {
		return f.pre[slot], nil
	}
	return f.post[slot], nil
}

func (f *fakeOracle) Intrinsics(ctx context.Context, account evmcommon.Address, side oracle.SlotSide) (oracle.IntrinsicState, error) {
	return oracle.IntrinsicState{}, nil
}

// fakeLayoutSource returns a fixed layout for every address, never hitting
// a real explorer API (layoutsource.Source is the seam that allows this).
type fakeLayoutSource struct {
	vars []*layout.StorageVariable
}

func (f *fakeLayoutSource) LayoutFor(ctx context.Context, address evmcommon.Address) (layoutsource.Layout, error) {
	return layoutsource.Layout{Variables: f.vars}, nil
}

func TestTraceStorageAccessLabelsDirectSlot(t *testing.T) {
	holder := evmcommon.HexToAddress("0xaaaa")
	balanceVar := &layout.StorageVariable{
		Label:    "totalSupply",
		BaseSlot: evmcommon.HexToHash("0x00"),
		Encoding: layout.EncodingInplace,
		Size:     32,
		Type:     &layout.TypeDescriptor{Kind: layout.TypePrimitive, Primitive: slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: 256}},
	}

	slot := balanceVar.BaseSlot
	sim := oracle.SimulationResult{
		AccessList:    map[evmcommon.Address][]evmcommon.Hash{holder: {slot}},
		IntrinsicPre:  map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
		IntrinsicPost: map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
	}

	o := &fakeOracle{
		sim:  sim,
		pre:  map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x01")},
		post: map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x02")},
	}
	ls := &fakeLayoutSource{vars: []*layout.StorageVariable{balanceVar}}
	cache, err := layoutcache.New(0)
	require.NoError(t, err)

	e := New(o, ls, cache, 1, nil)
	traces, err := e.TraceStorageAccess(context.Background(), oracle.TransactionInput{From: holder, To: &holder})
	require.NoError(t, err)

	trace := traces[holder]
	require.Empty(t, trace.Reads)
	require.Len(t, trace.Writes[slot], 1)
	require.Contains(t, trace.Writes[slot][0].FullExpression, "totalSupply")
	require.Empty(t, trace.Writes[slot][0].Path, "a directly-declared variable needs no path segments")
	require.False(t, trace.Writes[slot][0].OracleGap)
}

func TestTraceStorageAccessFallsBackOnMissingLayout(t *testing.T) {
	holder := evmcommon.HexToAddress("0xbbbb")
	slot := evmcommon.HexToHash("0x07")

	sim := oracle.SimulationResult{
		AccessList:    map[evmcommon.Address][]evmcommon.Hash{holder: {slot}},
		IntrinsicPre:  map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
		IntrinsicPost: map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
	}
	o := &fakeOracle{
		sim:  sim,
		pre:  map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x05")},
		post: map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x05")},
	}

	e := New(o, nil, nil, 1, nil)
	traces, err := e.TraceStorageAccess(context.Background(), oracle.TransactionInput{From: holder, To: &holder})
	require.NoError(t, err)

	trace := traces[holder]
	require.Len(t, trace.Reads[slot], 1, "no layout source still yields a fallback label, never an error")
}

func TestValidateTransactionInputRejectsAmbiguousShape(t *testing.T) {
	holder := evmcommon.HexToAddress("0xaaaa")
	require.NoError(t, ValidateTransactionInput(oracle.TransactionInput{From: holder, To: &holder}),
		"a plain value transfer with no calldata is still the raw-call shape")

	txHash := evmcommon.HexToHash("0x01")
	require.NoError(t, ValidateTransactionInput(oracle.TransactionInput{TxHash: &txHash}))

	require.Error(t, ValidateTransactionInput(oracle.TransactionInput{
		TxHash: &txHash,
		Data:   []byte{0x01, 0x02, 0x03, 0x04},
	}))

	require.Error(t, ValidateTransactionInput(oracle.TransactionInput{
		FunctionName: "balanceOf",
		Data:         []byte{0x01, 0x02, 0x03, 0x04},
	}))
}

func TestDecodeMismatchesCounterStaysZeroOnCleanRun(t *testing.T) {
	holder := evmcommon.HexToAddress("0xcccc")
	v := &layout.StorageVariable{
		Label: "x", BaseSlot: evmcommon.HexToHash("0x01"), Encoding: layout.EncodingInplace, Size: 32,
		Type: &layout.TypeDescriptor{Kind: layout.TypePrimitive, Primitive: slotcodec.Primitive{Kind: slotcodec.KindUint, Bits: 256}},
	}
	sim := oracle.SimulationResult{
		AccessList:    map[evmcommon.Address][]evmcommon.Hash{holder: {v.BaseSlot}},
		IntrinsicPre:  map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
		IntrinsicPost: map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
	}
	o := &fakeOracle{sim: sim, pre: map[evmcommon.Hash]evmcommon.Hash{}, post: map[evmcommon.Hash]evmcommon.Hash{}}
	ls := &fakeLayoutSource{vars: []*layout.StorageVariable{v}}
	e := New(o, ls, nil, 1, nil)

	_, err := e.TraceStorageAccess(context.Background(), oracle.TransactionInput{From: holder, To: &holder})
	require.NoError(t, err)
	require.Equal(t, int64(0), e.Stats.DecodeMismatches())
}
