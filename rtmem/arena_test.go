package rtmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArenaAllocateBasic(t *testing.T) {
	a := New(4096)
	p := a.Allocate(64, 8)
	require.NotNil(t, p)
	require.GreaterOrEqual(t, len(p), 64)
}

func TestArenaAllocateRespectsAlignment(t *testing.T) {
	a := New(4096)
	p := a.Allocate(17, 64)
	require.NotNil(t, p)
	addr := a.offsetOf(p)
	require.Equal(t, 0, addr%64)
}

func TestArenaOutOfMemoryReturnsNil(t *testing.T) {
	a := New(256)
	p := a.Allocate(1024, 8)
	require.Nil(t, p)
}

func TestArenaAllocateTooLargeForBlockMaxsizeReturnsNil(t *testing.T) {
	a := New(MaxBlock * 2)
	require.Nil(t, a.Allocate(MaxBlock+1, 8))
}

func TestArenaSplitLeavesUsableRemainder(t *testing.T) {
	a := New(4096)
	first := a.Allocate(64, 8)
	require.NotNil(t, first)

	// The chunk should have been split: there must still be room for a
	// second, independent allocation alongside the first.
	second := a.Allocate(64, 8)
	require.NotNil(t, second)

	firstAddr, secondAddr := a.offsetOf(first), a.offsetOf(second)
	require.NotEqual(t, firstAddr, secondAddr)
}

func TestArenaDeallocateThenReallocate(t *testing.T) {
	a := New(4096)
	p := a.Allocate(128, 8)
	require.NotNil(t, p)
	a.Deallocate(p)

	p2 := a.Allocate(128, 8)
	require.NotNil(t, p2)
}

func TestArenaCoalescesAdjacentFreeChunks(t *testing.T) {
	a := New(256)

	// Exhaust the arena with small allocations, then free them all in
	// reverse order; a single large allocation should succeed again only
	// if the freed chunks were coalesced back together.
	var ps [][]byte
	for {
		p := a.Allocate(24, 8)
		if p == nil {
			break
		}
		ps = append(ps, p)
	}
	require.Greater(t, len(ps), 1)

	for i := len(ps) - 1; i >= 0; i-- {
		a.Deallocate(ps[i])
	}

	big := a.Allocate(200, 8)
	require.NotNil(t, big)
}

func TestArenaResetDiscardsAllocations(t *testing.T) {
	a := New(1024)
	_ = a.Allocate(512, 8)
	require.Less(t, a.MaxSize(), 1024)

	a.Reset()
	require.Equal(t, 1024-chunkOverhead, a.MaxSize())
}

func TestArenaMaxSizeTracksLargestFreeChunk(t *testing.T) {
	a := New(1024)
	require.Equal(t, 1024-chunkOverhead, a.MaxSize())

	p := a.Allocate(128, 8)
	require.NotNil(t, p)
	require.Less(t, a.MaxSize(), 1024-chunkOverhead)
}

func TestArenaDeallocateNilIsNoop(t *testing.T) {
	a := New(64)
	a.Deallocate(nil)
}

func TestArenaSizeReportsBufferLength(t *testing.T) {
	a := New(2048)
	require.Equal(t, 2048, a.Size())
}
