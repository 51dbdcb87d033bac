// swap.go implements the swap device: a fixed number of page-sized slots
// on a simulated block device, keyed by (thread, vaddr) since swap has no
// direct physical mapping (grounded on swap.c's linear find_in_swap scan
// and its comment explaining why: swap slots are process-virtual-address
// keyed, not physically addressed). Free slots are tracked in a []bool that
// GetSwapSlot scans linearly for the first free entry, and the
// (owner, vaddr) lookup uses a map; everything else follows swap.c's shape
// directly.

package kerncore

import "sync"

// swapKey identifies a swapped-out page.
type swapKey struct {
	owner ThreadID
	vaddr uintptr
}

// swapDevice is the simulated swap block device.
type swapDevice struct {
	mu         sync.Mutex
	sectorSize int
	sectors    int
	pages      int // sectors / sectorsPerPage

	free  []bool // true => slot free
	used  int
	slots map[swapKey]int // (owner, vaddr) -> slot
	data  [][]byte        // slot -> page bytes, len == PageSize
}

// newSwapDevice builds a swapDevice able to hold floor(sectors/sectorsPerPage)
// pages, given the device's sectorSize.
func newSwapDevice(sectors, sectorSize int) *swapDevice {
	if sectorSize <= 0 {
		sectorSize = BlockSectorSize
	}
	sectorsPerPage := PageSize / sectorSize
	if PageSize%sectorSize != 0 {
		sectorsPerPage++
	}
	pages := sectors / sectorsPerPage
	sd := &swapDevice{
		sectorSize: sectorSize,
		sectors:    sectors,
		pages:      pages,
		free:       make([]bool, pages),
		slots:      make(map[swapKey]int),
		data:       make([][]byte, pages),
	}
	for i := range sd.free {
		sd.free[i] = true
	}
	return sd
}

// Capacity returns the number of page-sized slots the device holds.
func (sd *swapDevice) Capacity() int { return sd.pages }

// GetSwapSlot allocates a free slot, returning ErrSwapExhausted if none
// remain (find_in_swap's "swapblock is full" case, made a real error
// instead of a printf).
func (sd *swapDevice) GetSwapSlot() (int, error) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	for i, free := range sd.free {
		if free {
			sd.free[i] = false
			sd.used++
			return i, nil
		}
	}
	return -1, ErrSwapExhausted
}

// FreeSwapSlot releases slot back to the pool.
func (sd *swapDevice) FreeSwapSlot(slot int) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.checkSlotLocked(slot)
	if !sd.free[slot] {
		sd.free[slot] = true
		sd.used--
		sd.data[slot] = nil
		for k, s := range sd.slots {
			if s == slot {
				delete(sd.slots, k)
				break
			}
		}
	}
}

// MapAndWriteToSwapSlot records slot as backing (owner, vaddr) and copies
// page into it, equivalent to map_and_write_to_swapslot.
func (sd *swapDevice) MapAndWriteToSwapSlot(slot int, owner ThreadID, vaddr uintptr, page []byte) {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	sd.checkSlotLocked(slot)
	buf := make([]byte, PageSize)
	copy(buf, page)
	sd.data[slot] = buf
	sd.slots[swapKey{owner, vaddr}] = slot
}

// FindInSwap returns the slot backing (owner, vaddr), or -1 if not present.
func (sd *swapDevice) FindInSwap(owner ThreadID, vaddr uintptr) int {
	sd.mu.Lock()
	defer sd.mu.Unlock()
	if slot, ok := sd.slots[swapKey{owner, vaddr}]; ok {
		return slot
	}
	return -1
}

// GetFromSwap reads the page backing (owner, vaddr) into buf and frees its
// slot, equivalent to get_from_swap (which always frees on read: Pintos
// swap slots are consumed exactly once, matching demand-paging semantics
// where a page is either resident or swapped, never both).
func (sd *swapDevice) GetFromSwap(owner ThreadID, vaddr uintptr, buf []byte) bool {
	sd.mu.Lock()
	slot, ok := sd.slots[swapKey{owner, vaddr}]
	if !ok {
		sd.mu.Unlock()
		return false
	}
	copy(buf, sd.data[slot])
	sd.mu.Unlock()
	sd.FreeSwapSlot(slot)
	return true
}

func (sd *swapDevice) checkSlotLocked(slot int) {
	if slot < 0 || slot >= sd.pages {
		fatalf(nil, "swap device: slot %d out of range [0,%d)", slot, sd.pages)
	}
}
