// vmmap.go implements a process's virtual memory map: the array of
// load/stack/mmap regions (struct vaddr_map), the address-classification
// predicates that gate which virtual addresses may be mapped, and the
// page-fault resolution path that ties it all to the frame table and swap
// device. Grounded on vm/page.c's write_file_to_vaddr /
// clear_vaddr_map_and_pte / write_back_to_file / bring_from_swap and
// vm/page.h's classification declarations, generalized from page.c's
// mmap-only focus to cover all three VaddrMapKind values the spec names.

package kerncore

// AddMapping records a new VM map entry, failing with ErrMapTableFull once
// MaxVaddrMaps entries are tracked (struct thread's fixed
// vaddr_mappings array) and ErrOverlappingVaddr if the range intersects an
// existing mapping. Returns the mapid (the map's slot index) the entry was
// recorded at, equivalent to allocate_vaddr_mapid fused with
// set_vaddr_map.
func (p *Process) AddMapping(kind VaddrMapKind, start, end uintptr, fd, filesize int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapCount >= MaxVaddrMaps {
		return -1, ErrMapTableFull
	}
	if p.isOverlappingVaddrLocked(start, end) {
		return -1, ErrOverlappingVaddr
	}
	mapid := p.mapCount
	p.maps[mapid] = VaddrMap{Kind: kind, Start: start, End: end, FD: fd, Filesize: filesize}
	p.mapCount++
	return mapid, nil
}

// AllocateVaddrMapid reports the slot a subsequent AddMapping would use,
// or -1 if the map table is already at MaxVaddrMaps. Read-only: it does
// not reserve the slot, matching allocate_vaddr_mapid's role as a
// capacity probe ahead of the actual set_vaddr_map call.
func (p *Process) AllocateVaddrMapid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mapCount >= MaxVaddrMaps {
		return -1
	}
	return p.mapCount
}

// isOverlappingVaddrLocked reports whether [start,end) intersects any of
// p's active mappings. p.mu must be held.
func (p *Process) isOverlappingVaddrLocked(start, end uintptr) bool {
	for i := 0; i < p.mapCount; i++ {
		m := p.maps[i]
		if start < m.End && m.Start < end {
			return true
		}
	}
	return false
}

// isStackVaddrLocked reports whether vaddr falls within an active stack
// mapping, or exactly one page below one (the stack-growth window
// tryGrowStack honors), mirroring is_stack_vaddr. p.mu must be held.
func (p *Process) isStackVaddrLocked(vaddr uintptr) bool {
	for i := 0; i < p.mapCount; i++ {
		m := p.maps[i]
		if m.Kind != MapStackPages {
			continue
		}
		if m.Contains(vaddr) || vaddr == m.Start-PageSize {
			return true
		}
	}
	return false
}

// IsStackVaddr reports whether vaddr is part of p's stack region, current
// or growable. Equivalent to is_stack_vaddr.
func (p *Process) IsStackVaddr(vaddr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isStackVaddrLocked(vaddr)
}

func (p *Process) isCodeSegmentLocked(vaddr uintptr) bool {
	return p.codeEnd > p.codeStart && vaddr >= p.codeStart && vaddr < p.codeEnd
}

// IsCodeSegment reports whether vaddr lies within p's code segment, as set
// by SetCodeSegment. Equivalent to is_code_segment.
func (p *Process) IsCodeSegment(vaddr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isCodeSegmentLocked(vaddr)
}

func (p *Process) isDataSegmentLocked(vaddr uintptr) bool {
	return p.dataEnd > p.dataStart && vaddr >= p.dataStart && vaddr < p.dataEnd
}

// IsDataSegment reports whether vaddr lies within p's initialized data
// segment, as set by SetDataSegment. Equivalent to is_data_segment.
func (p *Process) IsDataSegment(vaddr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isDataSegmentLocked(vaddr)
}

// isMappableVaddrLocked reports whether vaddr may be the start of a new
// mmap page: non-null, page-aligned, not already part of the stack, not
// part of the code/data segments, and not overlapping an existing
// mapping. Equivalent to is_mappable_vaddr. p.mu must be held.
func (p *Process) isMappableVaddrLocked(vaddr uintptr) bool {
	if vaddr == 0 || vaddr%PageSize != 0 {
		return false
	}
	if p.isStackVaddrLocked(vaddr) || p.isCodeSegmentLocked(vaddr) || p.isDataSegmentLocked(vaddr) {
		return false
	}
	return !p.isOverlappingVaddrLocked(vaddr, vaddr+PageSize)
}

// IsMappableVaddr reports whether vaddr is a legal mmap target page.
// Equivalent to is_mappable_vaddr.
func (p *Process) IsMappableVaddr(vaddr uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isMappableVaddrLocked(vaddr)
}

// findMappingLocked returns the mapping containing vaddr, or nil. p.mu
// must be held.
func (p *Process) findMappingLocked(vaddr uintptr) *VaddrMap {
	for i := 0; i < p.mapCount; i++ {
		if p.maps[i].Contains(vaddr) {
			return &p.maps[i]
		}
	}
	return nil
}

// RemoveMapping unmaps the region covering vaddr, if any: every page it
// currently has resident is dropped from p.pageTable and its frame is
// released back to the pool, and the map record itself is dropped,
// compacting the array. Equivalent to clear_vaddr_map_and_pte, generalized
// from page.c's mmap-only version to release frames for any
// VaddrMapKind. Returns the removed mapping and true, or false if vaddr
// was not mapped.
func (k *Kernel) RemoveMapping(p *Process, vaddr uintptr) (VaddrMap, bool) {
	p.mu.Lock()
	idx := -1
	for i := 0; i < p.mapCount; i++ {
		if p.maps[i].Contains(vaddr) {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.mu.Unlock()
		return VaddrMap{}, false
	}

	removed := p.maps[idx]
	pages := int((removed.End - removed.Start) / PageSize)
	slots := make([]int, 0, pages)
	for i := 0; i < pages; i++ {
		page := removed.Start + uintptr(i)*PageSize
		if slot, resident := p.pageTable[page]; resident {
			slots = append(slots, slot)
			delete(p.pageTable, page)
		}
	}

	p.mapCount--
	p.maps[idx] = p.maps[p.mapCount]
	p.maps[p.mapCount] = VaddrMap{}
	p.mu.Unlock()

	// Frame-table locking is independent of p.mu (see PageFault), so these
	// run after p.mu is released.
	for _, slot := range slots {
		k.frames.ClearFrame(slot)
	}
	return removed, true
}

// pageOf truncates vaddr to its containing page boundary.
func pageOf(vaddr uintptr) uintptr { return vaddr &^ (PageSize - 1) }

// Mmap installs an mmap'd file region for p starting at vaddr, backed by
// fd. Equivalent to write_file_to_vaddr fused with allocate_vaddr_mapid
// (this core has no separate syscall layer to hold a mapid across two
// calls): it computes pages = ceil(filesize/PageSize), validates every
// page with IsMappableVaddr, reads filesize bytes from fd's backing
// (which must implement FileBacking) starting at the descriptor's current
// offset, installs one frame per page with that content, clears each
// installed frame's dirty bit, then records the mapping. Any failure
// after frames have been installed rolls every one of them back, so a
// partially-failed Mmap never leaks frames or a torn page table. Returns
// the new mapping's mapid.
func (k *Kernel) Mmap(p *Process, t *Thread, fd int, vaddr uintptr, filesize int) (int, error) {
	if filesize <= 0 || vaddr == 0 || vaddr%PageSize != 0 {
		return -1, ErrNotMappable
	}

	backing, ok := p.LookupFD(fd)
	if !ok {
		return -1, ErrNotMappable
	}
	file, ok := backing.(FileBacking)
	if !ok {
		return -1, ErrNotMappable
	}

	pages := (filesize + PageSize - 1) / PageSize
	end := vaddr + uintptr(pages)*PageSize
	for i := 0; i < pages; i++ {
		if !p.IsMappableVaddr(vaddr + uintptr(i)*PageSize) {
			return -1, ErrNotMappable
		}
	}

	offset, _ := p.FDOffset(fd)
	content := make([]byte, filesize)
	if _, err := file.ReadAt(content, offset); err != nil {
		return -1, WrapError("kerncore: mmap read", err)
	}

	installed := make([]int, 0, pages)
	rollback := func() {
		for _, slot := range installed {
			k.frames.ClearFrame(slot)
		}
		p.mu.Lock()
		for i := 0; i < len(installed); i++ {
			delete(p.pageTable, vaddr+uintptr(i)*PageSize)
		}
		p.mu.Unlock()
	}

	for i := 0; i < pages; i++ {
		page := vaddr + uintptr(i)*PageSize
		buf := make([]byte, PageSize)
		lo, hi := i*PageSize, (i+1)*PageSize
		if hi > filesize {
			hi = filesize
		}
		if lo < hi {
			copy(buf, content[lo:hi])
		}

		slot, err := k.frames.MapFrame(t, page, buf, func(evOwner *Thread, evVaddr uintptr, evData []byte) {
			k.evictFrame(evOwner, evVaddr, evData)
		})
		if err != nil {
			rollback()
			return -1, err
		}
		k.frames.MarkDirty(slot, false)
		installed = append(installed, slot)

		p.mu.Lock()
		p.pageTable[page] = slot
		p.mu.Unlock()
	}

	mapid, err := p.AddMapping(MapUserFiles, vaddr, end, fd, filesize)
	if err != nil {
		rollback()
		return -1, err
	}

	k.logger.Debug("vm", "mmap installed", "process", p.Pid, "fd", fd, "vaddr", vaddr, "pages", pages, "mapid", mapid)
	return mapid, nil
}

// Munmap writes back any dirty pages of the mmap region at vaddr to its
// backing file, then unmaps it. Equivalent to write_back_to_file followed
// by clear_vaddr_map_and_pte. Returns ErrNotMappable if vaddr is not the
// start of (or within) an active MapUserFiles region.
func (k *Kernel) Munmap(p *Process, vaddr uintptr) error {
	p.mu.Lock()
	mapping := p.findMappingLocked(vaddr)
	var region VaddrMap
	if mapping != nil {
		region = *mapping
	}
	p.mu.Unlock()

	if mapping == nil || region.Kind != MapUserFiles {
		return ErrNotMappable
	}

	if err := k.writeBackToFile(p, region); err != nil {
		return err
	}
	if _, ok := k.RemoveMapping(p, region.Start); !ok {
		fatalf(nil, "process %d: mmap region at %x vanished mid-unmap", p.Pid, region.Start)
	}
	k.logger.Debug("vm", "mmap removed", "process", p.Pid, "vaddr", region.Start)
	return nil
}

// writeBackToFile implements write_back_to_file, upgraded from the
// original's single-page-only dirty check (which only ever inspected
// vmap->svaddr) to a real per-page one: every resident page in region is
// checked independently, and only the dirty ones are written, each at the
// byte range it actually occupies within region.Filesize -- the last page
// of an mmap region is usually only partially backed by the file, so a
// single filesize-length write from the first page (the original's
// behavior) would both mis-place every page after the first and write
// past EOF.
func (k *Kernel) writeBackToFile(p *Process, region VaddrMap) error {
	backing, ok := p.LookupFD(region.FD)
	if !ok {
		return nil
	}
	file, ok := backing.(FileBacking)
	if !ok {
		return nil
	}

	pages := int((region.End - region.Start) / PageSize)
	for i := 0; i < pages; i++ {
		page := region.Start + uintptr(i)*PageSize
		p.mu.Lock()
		slot, resident := p.pageTable[page]
		p.mu.Unlock()
		if !resident || !k.frames.IsDirty(slot) {
			continue
		}

		lo, hi := i*PageSize, (i+1)*PageSize
		if hi > region.Filesize {
			hi = region.Filesize
		}
		if lo >= hi {
			continue
		}

		data := k.frames.Data(slot)
		if _, err := file.WriteAt(data[:hi-lo], int64(lo)); err != nil {
			return WrapError("kerncore: mmap write-back", err)
		}
		k.frames.MarkDirty(slot, false)
	}
	return nil
}

// PageFault resolves a page fault at vaddr for process p: if vaddr is
// already resident (present in p.pageTable) this is a spurious call and
// does nothing; otherwise it classifies the fault (existing mapping,
// stack growth, or genuinely invalid) and brings the page in, evicting
// another frame through the clock algorithm if the pool is full. Mirrors
// the dispatch bring_from_swap / write_file_to_vaddr / stack-growth
// handling that a page_fault handler built on page.c would perform.
func (k *Kernel) PageFault(p *Process, faultAddr uintptr, t *Thread) error {
	page := pageOf(faultAddr)

	p.mu.Lock()
	if _, resident := p.pageTable[page]; resident {
		p.mu.Unlock()
		return nil
	}
	mapping := p.findMappingLocked(page)
	p.mu.Unlock()

	if mapping == nil {
		grown, err := k.tryGrowStack(p, page)
		if err != nil {
			return err
		}
		if !grown {
			k.metrics.recordPageFault()
			return ErrNotMappable
		}
	}

	k.metrics.recordPageFault()
	buf := make([]byte, PageSize)

	if slot := k.swap.FindInSwap(p.Pid, page); slot != -1 {
		if !k.swap.GetFromSwap(p.Pid, page, buf) {
			fatalf(nil, "process %d: swap slot for %x vanished mid-fault", p.Pid, page)
		}
		k.metrics.recordSwapRead()
	}
	// Else: zero-filled. Anonymous stack/BSS pages are zero by
	// definition; LOAD_PAGES pages stay zero-filled here too, since
	// reading a program's executable image is outside this core's scope
	// (§1 Non-goals). MapUserFiles pages never reach this branch on
	// their first fault -- Mmap installs their content eagerly -- so a
	// fault here for one only happens after eviction, which the swap
	// branch above already restores from.

	frameSlot, err := k.frames.MapFrame(t, page, buf, func(evOwner *Thread, evVaddr uintptr, evData []byte) {
		k.evictFrame(evOwner, evVaddr, evData)
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.pageTable[page] = frameSlot
	p.mu.Unlock()

	k.logger.Debug("frame", "page fault resolved", "process", p.Pid, "vaddr", page, "frame", frameSlot)
	return nil
}

// evictFrame writes an evicted page out to swap, whether or not it is
// dirty, and clears the
// evicted owner's page table entry. Called from within frameTable's own
// lock via the evictFn callback, so it must not re-enter the frame table.
func (k *Kernel) evictFrame(owner *Thread, vaddr uintptr, data []byte) {
	if owner == nil || owner.Proc == nil {
		return
	}
	p := owner.Proc
	p.mu.Lock()
	delete(p.pageTable, vaddr)
	p.mu.Unlock()

	slot, err := k.swap.GetSwapSlot()
	if err != nil {
		k.logger.Error("swap", "eviction could not allocate swap slot", err, "process", p.Pid, "vaddr", vaddr)
		return
	}
	k.swap.MapAndWriteToSwapSlot(slot, p.Pid, vaddr, data)
	k.metrics.recordSwapWrite()
	k.metrics.recordEviction()
}

// tryGrowStack extends p's stack mapping to cover page if page lies
// within one page below the current stack mapping's low end and
// MaxStackPages has not been exceeded, equivalent to the stack-growth
// heuristic a page_fault handler applies when the fault address is just
// below esp.
func (k *Kernel) tryGrowStack(p *Process, page uintptr) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var stack *VaddrMap
	for i := 0; i < p.mapCount; i++ {
		if p.maps[i].Kind == MapStackPages {
			stack = &p.maps[i]
			break
		}
	}
	if stack == nil || page != stack.Start-PageSize {
		return false, nil
	}
	if p.stackPages >= MaxStackPages {
		return false, ErrStackLimitReached
	}
	stack.Start -= PageSize
	p.stackPages++
	return true, nil
}
