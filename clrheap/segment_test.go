// ABOUTME: Tests for alignment math and generation boundary computation
// ABOUTME: Covers boundary-adjacent addresses and out-of-range probes

package clrheap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clrlens/clrlens/dac"
)

func TestAlign(t *testing.T) {
	cases := []struct {
		name    string
		size    uint64
		ptrSize int
		large   bool
		want    uint64
	}{
		{"4-byte ptr rounds to 4", 1, 4, false, 4},
		{"4-byte ptr already aligned", 8, 4, false, 8},
		{"4-byte ptr mid value", 13, 4, false, 16},
		{"8-byte ptr rounds to 8", 1, 8, false, 8},
		{"8-byte ptr already aligned", 16, 8, false, 16},
		{"8-byte ptr mid value", 13, 8, false, 16},
		{"large uses 8 even on 4-byte ptr", 13, 4, true, 16},
		{"large on 8-byte ptr", 25, 8, true, 32},
		{"zero stays zero", 0, 8, false, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Align(tc.size, tc.ptrSize, tc.large)
			assert.Equal(t, tc.want, got)
			// Aligning twice must change nothing.
			assert.Equal(t, got, Align(got, tc.ptrSize, tc.large))
		})
	}
}

func TestAlignIdempotentSweep(t *testing.T) {
	for _, ptrSize := range []int{4, 8} {
		for _, large := range []bool{false, true} {
			for size := uint64(0); size < 64; size++ {
				once := Align(size, ptrSize, large)
				require.GreaterOrEqual(t, once, size)
				require.Equal(t, once, Align(once, ptrSize, large))
			}
		}
	}
}

func TestEphemeralSegmentGenerations(t *testing.T) {
	// Layout: [0x1000 gen2 0x1800 gen1 0x1C00 gen0 0x2000)
	s := NewSegment(dac.SegmentData{
		Start:     0x1000,
		End:       0x2000,
		Gen1Start: 0x1800,
		Gen0Start: 0x1C00,
		Ephemeral: true,
	})

	cases := []struct {
		addr uint64
		want int
	}{
		{0x0FFF, -1},   // just below the segment
		{0x1000, 2},    // segment start
		{0x17FF, 2},    // last gen2 byte
		{0x1800, 1},    // gen1 boundary
		{0x1BFF, 1},    // last gen1 byte
		{0x1C00, 0},    // gen0 boundary
		{0x1FFF, 0},    // last gen0 byte
		{0x2000, -1},   // segment end is exclusive
		{0x999999, -1}, // far outside
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.GetGeneration(tc.addr), "addr %#x", tc.addr)
	}

	first, ok := s.FirstObject()
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), first)
}

func TestNonEphemeralSegmentIsAllGen2(t *testing.T) {
	s := NewSegment(dac.SegmentData{Start: 0x4000, End: 0x6000})

	assert.True(t, s.Gen0.Empty())
	assert.True(t, s.Gen1.Empty())
	assert.Equal(t, 2, s.GetGeneration(0x4000))
	assert.Equal(t, 2, s.GetGeneration(0x5FFF))
	assert.Equal(t, -1, s.GetGeneration(0x6000))
	assert.Equal(t, -1, s.GetGeneration(0x3FFF))
}

func TestEmptySegmentHasNoFirstObject(t *testing.T) {
	s := NewSegment(dac.SegmentData{Start: 0x4000, End: 0x4000})
	_, ok := s.FirstObject()
	assert.False(t, ok)
}

func TestRange(t *testing.T) {
	r := Range{Start: 0x100, End: 0x200}
	assert.True(t, r.Contains(0x100))
	assert.True(t, r.Contains(0x1FF))
	assert.False(t, r.Contains(0x200))
	assert.False(t, r.Contains(0x0FF))
	assert.Equal(t, uint64(0x100), r.Length())
	assert.Equal(t, uint64(0), Range{Start: 0x200, End: 0x100}.Length())
}
