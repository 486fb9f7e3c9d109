package slotlens

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
	"github.com/bytesentry/slotlens/layoutsource"
	"github.com/bytesentry/slotlens/oracle"
	"github.com/bytesentry/slotlens/slotcodec"
)

type fixtureOracle struct {
	sim  oracle.SimulationResult
	pre  map[evmcommon.Hash]evmcommon.Hash
	post map[evmcommon.Hash]evmcommon.Hash
}

func (f *fixtureOracle) Simulate(ctx context.Context, tx oracle.TransactionInput) (oracle.SimulationResult, error) {
	return f.sim, nil
}

func (f *fixtureOracle) StorageAt(ctx context.Context, account evmcommon.Address, slot evmcommon.Hash, side oracle.SlotSide) (evmcommon.Hash, error) {
	if side == oracle.SidePre {
		return f.pre[slot], nil
	}
	return f.post[slot], nil
}

func (f *fixtureOracle) Intrinsics(ctx context.Context, account evmcommon.Address, side oracle.SlotSide) (oracle.IntrinsicState, error) {
	return oracle.IntrinsicState{}, nil
}

type fixtureLayoutSource struct{ vars []*layout.StorageVariable }

func (f *fixtureLayoutSource) LayoutFor(ctx context.Context, address evmcommon.Address) (layoutsource.Layout, error) {
	return layoutsource.Layout{Variables: f.vars}, nil
}

func TestAnalyzerTraceStorageAccessEndToEnd(t *testing.T) {
	holder := evmcommon.HexToAddress("0x1234")
	v := &layout.StorageVariable{
		Label: "owner", BaseSlot: evmcommon.HexToHash("0x00"), Encoding: layout.EncodingInplace, Size: 20,
		Type: &layout.TypeDescriptor{Kind: layout.TypePrimitive, Primitive: slotcodec.Primitive{Kind: slotcodec.KindAddress}},
	}
	slot := v.BaseSlot
	sim := oracle.SimulationResult{
		AccessList:    map[evmcommon.Address][]evmcommon.Hash{holder: {slot}},
		IntrinsicPre:  map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
		IntrinsicPost: map[evmcommon.Address]oracle.IntrinsicState{holder: {}},
	}
	o := &fixtureOracle{
		sim:  sim,
		pre:  map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToHash("0x00")},
		post: map[evmcommon.Hash]evmcommon.Hash{slot: evmcommon.HexToAddress("0xbeef").Hash()},
	}
	ls := &fixtureLayoutSource{vars: []*layout.StorageVariable{v}}

	a := NewWithOracle(o, ls, 1)
	traces, err := a.TraceStorageAccess(context.Background(), TransactionInput{From: holder, To: &holder})
	require.NoError(t, err)

	require.Len(t, traces[holder].Writes[slot], 1)
	require.Equal(t, int64(0), a.Stats().DecodeMismatches())
}
