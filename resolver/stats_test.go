package resolver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bytesentry/slotlens/evmcommon"
	"github.com/bytesentry/slotlens/layout"
)

func TestStatsRecordAndRead(t *testing.T) {
	var s Stats
	s.RecordDecodeMismatch()
	s.RecordDecodeMismatch()
	s.RecordFallback()
	s.RecordAmbiguous()

	require.Equal(t, int64(2), s.DecodeMismatches())
	require.Equal(t, int64(1), s.FallbackLabeled())
	require.Equal(t, int64(1), s.AmbiguousMatches())
}

func TestNilStatsIsReadyToUse(t *testing.T) {
	var s *Stats
	require.NotPanics(t, func() {
		s.RecordDecodeMismatch()
	})
	require.Equal(t, int64(0), s.DecodeMismatches())
}

func TestIsFallbackRecognizesSyntheticMatch(t *testing.T) {
	idx, err := layout.Build("0xabc", nil)
	require.NoError(t, err)

	slot := evmcommon.HexToHash("0x1234")
	matches := Resolve(idx, slot, nil)
	require.Len(t, matches, 1)
	require.True(t, IsFallback(matches[0]))

	direct := SlotMatch{Variable: &layout.StorageVariable{Label: "totalSupply"}}
	require.False(t, IsFallback(direct))
}
