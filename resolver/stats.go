package resolver

import (
	"strings"
	"sync/atomic"
)

// Stats is a lightweight in-process counter set for resolution outcomes
// worth watching across many analyses — not a metrics-subsystem export,
// just the kind of internal tally the teacher corpus keeps next to its
// tracers (eth/tracers/logger's op/memory limit counters). The zero value
// is ready to use.
type Stats struct {
	decodeMismatch  atomic.Int64
	fallbackLabeled atomic.Int64
	ambiguousMatch  atomic.Int64
}

// RecordDecodeMismatch counts a SlotMatch dropped by the I2 round-trip
// check (spec.md §7 "DecodeMismatch").
func (s *Stats) RecordDecodeMismatch() {
	if s != nil {
		s.decodeMismatch.Add(1)
	}
}

// RecordFallback counts a slot that Resolve could only explain with its
// synthetic fallback label (spec.md §4.4.5).
func (s *Stats) RecordFallback() {
	if s != nil {
		s.fallbackLabeled.Add(1)
	}
}

// RecordAmbiguous counts a slot for which Resolve returned more than one
// surviving match (spec.md §4.4 "Ambiguity", §9 "Ambiguous resolution").
func (s *Stats) RecordAmbiguous() {
	if s != nil {
		s.ambiguousMatch.Add(1)
	}
}

// DecodeMismatches, FallbackLabeled, and AmbiguousMatches report the
// current counter values. Safe to call concurrently with the Record*
// methods.
func (s *Stats) DecodeMismatches() int64 {
	if s == nil {
		return 0
	}
	return s.decodeMismatch.Load()
}

func (s *Stats) FallbackLabeled() int64 {
	if s == nil {
		return 0
	}
	return s.fallbackLabeled.Load()
}

func (s *Stats) AmbiguousMatches() int64 {
	if s == nil {
		return 0
	}
	return s.ambiguousMatch.Load()
}

// fallbackLabelPrefix is the synthetic label fallback() assigns; kept in
// sync with that function so IsFallback can recognize its output without
// threading an extra "was this synthetic" flag through SlotMatch.
const fallbackLabelPrefix = "var_"

// IsFallback reports whether m is the synthetic fallback match Resolve
// produces when no declared variable explains a slot (spec.md §4.4.5).
func IsFallback(m SlotMatch) bool {
	return m.Variable != nil && strings.HasPrefix(m.Variable.Label, fallbackLabelPrefix)
}
