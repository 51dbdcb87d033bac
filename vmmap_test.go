package kerncore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memFile is a test-only FileBacking backed by an in-memory buffer, the
// seam an embedding application's OpenFD value is expected to implement.
type memFile struct {
	data []byte
}

func newMemFile(initial []byte) *memFile {
	return &memFile{data: append([]byte(nil), initial...)}
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func TestProcessAddMappingRejectsOverlap(t *testing.T) {
	p := NewProcess(1, 0)
	_, err := p.AddMapping(MapLoadPages, 0x1000, 0x3000, -1, 0)
	require.NoError(t, err)

	_, err = p.AddMapping(MapUserFiles, 0x2000, 0x4000, 3, 0)
	assert.ErrorIs(t, err, ErrOverlappingVaddr)

	// Adjacent, non-overlapping ranges are fine.
	_, err = p.AddMapping(MapUserFiles, 0x3000, 0x4000, 3, 0)
	require.NoError(t, err)
}

func TestProcessAddMappingRejectsOnceTableFull(t *testing.T) {
	p := NewProcess(1, 0)
	for i := 0; i < MaxVaddrMaps; i++ {
		start := uintptr(i) * PageSize
		mapid, err := p.AddMapping(MapLoadPages, start, start+PageSize, -1, 0)
		require.NoError(t, err)
		assert.Equal(t, i, mapid)
	}
	assert.Equal(t, -1, p.AllocateVaddrMapid())

	_, err := p.AddMapping(MapLoadPages, uintptr(MaxVaddrMaps)*PageSize, uintptr(MaxVaddrMaps+1)*PageSize, -1, 0)
	assert.ErrorIs(t, err, ErrMapTableFull)
}

func TestKernelRemoveMappingCompactsArrayAndFreesFrames(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	_, err = p.AddMapping(MapLoadPages, 0x1000, 0x2000, -1, 0)
	require.NoError(t, err)
	_, err = p.AddMapping(MapStackPages, 0x5000, 0x6000, -1, 0)
	require.NoError(t, err)

	th := &Thread{ID: 1, Proc: p}
	require.NoError(t, k.PageFault(p, 0x1000, th))
	require.NoError(t, k.PageFault(p, 0x5000, th))
	assert.Equal(t, 2, len(p.pageTable))

	removed, ok := k.RemoveMapping(p, 0x1000)
	require.True(t, ok)
	assert.Equal(t, MapLoadPages, removed.Kind)
	_, resident := p.pageTable[0x1000]
	assert.False(t, resident, "frame and page-table entry must be released on unmap")

	_, ok = k.RemoveMapping(p, 0x1000)
	assert.False(t, ok)

	remaining, ok := k.RemoveMapping(p, 0x5000)
	require.True(t, ok)
	assert.Equal(t, MapStackPages, remaining.Kind)
	_, resident = p.pageTable[0x5000]
	assert.False(t, resident)
}

func TestProcessIsMappableVaddrExcludesStackCodeDataAndOverlap(t *testing.T) {
	p := NewProcess(1, 0)
	p.SetCodeSegment(0x0, 0x1000)
	p.SetDataSegment(0x1000, 0x2000)
	_, err := p.AddMapping(MapStackPages, 0x9000, 0xA000, -1, 0)
	require.NoError(t, err)
	_, err = p.AddMapping(MapLoadPages, 0x3000, 0x4000, -1, 0)
	require.NoError(t, err)

	assert.False(t, p.IsMappableVaddr(0), "null vaddr")
	assert.False(t, p.IsMappableVaddr(0x1500), "misaligned vaddr")
	assert.False(t, p.IsMappableVaddr(0x1000), "data segment")
	assert.True(t, p.IsCodeSegment(0x500))
	assert.True(t, p.IsDataSegment(0x1500))
	assert.True(t, p.IsStackVaddr(0x9500))
	assert.True(t, p.IsStackVaddr(0x9000-PageSize), "growth window one page below stack start")
	assert.False(t, p.IsMappableVaddr(0x9000), "already stack")
	assert.False(t, p.IsMappableVaddr(0x3000), "overlaps existing mapping")
	assert.True(t, p.IsMappableVaddr(0x6000))
}

func TestKernelPageFaultGrowsStackJustBelowExistingMapping(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	_, err = p.AddMapping(MapStackPages, 0x10000, 0x11000, -1, 0)
	require.NoError(t, err)

	th := &Thread{ID: 1, Proc: p}

	err = k.PageFault(p, 0x10000-1, th)
	require.NoError(t, err)

	_, ok := k.RemoveMapping(p, 0x10000-PageSize)
	assert.True(t, ok, "stack mapping should have grown down by one page")
}

func TestKernelPageFaultReturnsErrNotMappableOutsideAnyRegion(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	th := &Thread{ID: 1, Proc: p}

	err = k.PageFault(p, 0xdeadb000, th)
	assert.ErrorIs(t, err, ErrNotMappable)
}

func TestKernelPageFaultReturnsErrNoFreeFrameWhenPoolExhausted(t *testing.T) {
	k, err := New(WithUserPool(0))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	_, err = p.AddMapping(MapStackPages, 0x10000, 0x11000, -1, 0)
	require.NoError(t, err)
	th := &Thread{ID: 1, Proc: p}

	err = k.PageFault(p, 0x10500, th)
	assert.ErrorIs(t, err, ErrNoFreeFrame)
}

func TestKernelPageFaultIsNoOpForAlreadyResidentPage(t *testing.T) {
	k, err := New(WithUserPool(4), WithMetrics(true))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	_, err = p.AddMapping(MapStackPages, 0x10000, 0x11000, -1, 0)
	require.NoError(t, err)
	th := &Thread{ID: 1, Proc: p}

	require.NoError(t, k.PageFault(p, 0x10000, th))
	snap := k.Metrics().Snapshot()

	// A second fault on the same already-resident page must not record
	// another page fault.
	require.NoError(t, k.PageFault(p, 0x10050, th))
	after := k.Metrics().Snapshot()
	assert.Equal(t, snap.PageFaults, after.PageFaults)
}

// TestKernelMmapRoundTripReadsPatternAndWritesBackMutation exercises the
// mmap round trip end to end: mapping a two-page file region surfaces its
// content through the frame table, and munmap after a dirtying mutation
// writes the mutated content back to the backing file.
func TestKernelMmapRoundTripReadsPatternAndWritesBackMutation(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	filesize := 2 * PageSize
	pattern := make([]byte, filesize)
	for i := range pattern {
		pattern[i] = 'P'
	}
	file := newMemFile(pattern)
	fd, err := p.OpenFD(file)
	require.NoError(t, err)

	const vaddr = uintptr(0x40000)
	th := &Thread{ID: 1, Proc: p}
	mapid, err := k.Mmap(p, th, fd, vaddr, filesize)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, mapid, 0)

	// Reading either page should surface the file's pattern, not zeros:
	// PageFault must be a no-op since Mmap installed the pages eagerly.
	require.NoError(t, k.PageFault(p, vaddr, th))
	require.NoError(t, k.PageFault(p, vaddr+PageSize, th))
	for _, page := range []uintptr{vaddr, vaddr + PageSize} {
		slot, ok := p.pageTable[page]
		require.True(t, ok)
		data := k.frames.Data(slot)
		for _, b := range data {
			assert.Equal(t, byte('P'), b)
		}
	}

	// Mutate the first page's resident content and mark it dirty, as a
	// real write-through-the-page-table write syscall would.
	firstSlot := p.pageTable[vaddr]
	mutated := k.frames.Data(firstSlot)
	for i := range mutated {
		mutated[i] = 'Q'
	}
	k.frames.MarkDirty(firstSlot, true)

	require.NoError(t, k.Munmap(p, vaddr))

	for i := 0; i < PageSize; i++ {
		assert.Equal(t, byte('Q'), file.data[i], "dirty page must be written back")
	}
	for i := PageSize; i < filesize; i++ {
		assert.Equal(t, byte('P'), file.data[i], "clean page must be left untouched")
	}

	_, resident := p.pageTable[vaddr]
	assert.False(t, resident, "munmap must release the page table entry")
	_, resident = p.pageTable[vaddr+PageSize]
	assert.False(t, resident)
}

func TestKernelMmapRejectsUnmappableVaddr(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	p.SetCodeSegment(0x40000, 0x41000)
	file := newMemFile(make([]byte, PageSize))
	fd, err := p.OpenFD(file)
	require.NoError(t, err)

	th := &Thread{ID: 1, Proc: p}
	_, err = k.Mmap(p, th, fd, 0x40000, PageSize)
	assert.ErrorIs(t, err, ErrNotMappable)
}

func TestKernelMunmapRejectsNonMmapVaddr(t *testing.T) {
	k, err := New(WithUserPool(4))
	require.NoError(t, err)
	require.NoError(t, k.Start())

	p := NewProcess(1, 0)
	_, err = p.AddMapping(MapStackPages, 0x10000, 0x11000, -1, 0)
	require.NoError(t, err)

	err = k.Munmap(p, 0x10000)
	assert.ErrorIs(t, err, ErrNotMappable)
}
