// process.go implements the user-process-facing state layered over a
// Thread: the parent/child tree, exit-status relay, and the open file
// descriptor table. Grounded on struct thread's t_children/file_descriptors
// fields (thread.h) and the child-tracking and fd syscalls in
// userprog/syscall.c (exec/wait/open/close), adapted from promisify.go's
// "synchronize on completion, hand back a result" shape: ChildWait plays
// the role Promisify's result channel does, but backed by the kernel's own
// Semaphore instead of a goroutine-agnostic channel, since child
// termination must interact with the scheduler's blocking primitives.

package kerncore

import "sync"

// ChildInfo records one child's outcome as the spec's exit-status
// propagation requires: a parent can wait on a child at most once, and
// gets back whatever status the child passed to ProcessExit (or -1 if it
// was terminated abnormally).
type ChildInfo struct {
	Pid        ThreadID
	ExitStatus int
	exited     bool
	waited     bool
}

// openFile is a process's view of one of its open file descriptors. The
// kernel does not implement a real filesystem; Backing is an opaque handle
// the embedding application supplies (e.g. an in-memory buffer), stored so
// read/write syscalls implemented on top of Process have somewhere to
// operate.
type openFile struct {
	fd      int
	backing any
	offset  int64
}

// FileBacking is the interface an OpenFD backing value must satisfy for
// Kernel.Mmap and Kernel.Munmap to read and write real file content. The
// kernel itself has no filesystem (§1 Non-goals), so mmap'd file I/O is
// always performed against whatever the embedding application supplied
// when it opened the descriptor.
type FileBacking interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
}

// Process is the user-mode state attached to a Thread via Thread.Proc. A
// kernel-only thread has a nil Proc.
type Process struct {
	mu sync.Mutex

	Pid       ThreadID
	ParentPid ThreadID

	exitStatus int
	exited     bool

	children  []*ChildInfo
	childSema *Semaphore // signaled once per child exit

	fds    map[int]*openFile
	nextFD int

	// VM map array: every load segment, stack page, and mmap region this
	// process currently has mapped. See vmmap.go.
	maps     [MaxVaddrMaps]VaddrMap
	mapCount int

	// pageTable is this process's simulated page directory: virtual page
	// number -> physical frame slot. Entries are removed on eviction or
	// munmap/exit.
	pageTable map[uintptr]int

	stackPages int

	// codeStart/codeEnd and dataStart/dataEnd bound the executable's code
	// and initialized-data segments, as is_code_segment/is_data_segment
	// classify against. Zero until the embedding application calls
	// SetCodeSegment/SetDataSegment after loading the executable image;
	// a zero-width range never classifies anything as in-segment.
	codeStart, codeEnd uintptr
	dataStart, dataEnd uintptr
}

// NewProcess returns a Process ready to be attached to a Thread via
// Kernel.ThreadCreate's caller (the thread body stores it on t.Proc before
// the goroutine starts running user code).
func NewProcess(pid, parentPid ThreadID) *Process {
	return &Process{
		Pid:       pid,
		ParentPid: parentPid,
		childSema: NewSemaphore(0),
		fds:       make(map[int]*openFile),
		nextFD:    InitialFD,
		pageTable: make(map[uintptr]int),
	}
}

// SetCodeSegment records the virtual address range of p's code segment,
// consulted by IsCodeSegment. Called once by the embedding application
// after loading the executable image; loading is outside this core's
// scope (§1 Non-goals).
func (p *Process) SetCodeSegment(start, end uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codeStart, p.codeEnd = start, end
}

// SetDataSegment records the virtual address range of p's initialized
// data segment, consulted by IsDataSegment.
func (p *Process) SetDataSegment(start, end uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataStart, p.dataEnd = start, end
}

// AddChild registers a newly created child, failing if MaxChildren is
// already tracked (struct thread's t_children is a fixed MAX_CHILDREN
// array).
func (p *Process) AddChild(pid ThreadID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.children) >= MaxChildren {
		return ErrChildLimitReached
	}
	p.children = append(p.children, &ChildInfo{Pid: pid, ExitStatus: -1})
	return nil
}

// NotifyChildExit records status for child pid and wakes any parent
// blocked in ChildWait for it. Called by Kernel.ProcessExit when the
// exiting process has a parent.
func (p *Process) NotifyChildExit(pid ThreadID, status int) {
	p.mu.Lock()
	for _, c := range p.children {
		if c.Pid == pid {
			c.ExitStatus = status
			c.exited = true
			break
		}
	}
	p.mu.Unlock()
}

// ChildWait blocks the calling thread (via k) until pid has exited, then
// returns its exit status. Waiting twice on the same pid, or on a pid that
// is not this process's child, returns -1, matching wait()'s documented
// behavior for invalid pids.
func (k *Kernel) ChildWait(p *Process, pid ThreadID) int {
	p.mu.Lock()
	var target *ChildInfo
	for _, c := range p.children {
		if c.Pid == pid {
			target = c
			break
		}
	}
	if target == nil || target.waited {
		p.mu.Unlock()
		return -1
	}
	for !target.exited {
		p.mu.Unlock()
		k.SemaDownLocked(p.childSema)
		p.mu.Lock()
	}
	target.waited = true
	status := target.ExitStatus
	p.mu.Unlock()
	return status
}

// SemaDownLocked is SemaDown taking the kernel mutex itself, for callers
// (like ChildWait) that must not hold an unrelated lock (p.mu) across the
// block.
func (k *Kernel) SemaDownLocked(s *Semaphore) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.SemaDown(s)
}

// ProcessExit records status as the process's exit status and wakes the
// parent if it is blocked in ChildWait, equivalent to the thread_exit /
// child_sema_up sequence triggered when a user process terminates.
func (k *Kernel) ProcessExit(p *Process, parent *Process, status int) {
	p.mu.Lock()
	p.exitStatus = status
	p.exited = true
	p.mu.Unlock()
	if parent != nil {
		parent.NotifyChildExit(p.Pid, status)
		k.mu.Lock()
		k.SemaUp(parent.childSema)
		k.mu.Unlock()
	}
}

// OpenFD installs backing under a freshly allocated descriptor, returning
// ErrFDTableFull once MaxOpenFD descriptors are open (MAX_OPEN_FD).
func (p *Process) OpenFD(backing any) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.fds) >= MaxOpenFD {
		return -1, ErrFDTableFull
	}
	fd := p.nextFD
	p.nextFD++
	p.fds[fd] = &openFile{fd: fd, backing: backing}
	return fd, nil
}

// CloseFD removes fd from the table. Closing an unknown fd is a no-op,
// matching close()'s documented tolerance of invalid fds.
func (p *Process) CloseFD(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fds, fd)
}

// LookupFD returns the backing handle for fd and whether it is open.
func (p *Process) LookupFD(fd int) (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fds[fd]
	if !ok {
		return nil, false
	}
	return f.backing, true
}

// FDOffset returns fd's current seek offset.
func (p *Process) FDOffset(fd int) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fds[fd]
	if !ok {
		return 0, false
	}
	return f.offset, true
}

// SeekFD sets fd's seek offset.
func (p *Process) SeekFD(fd int, pos int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if f, ok := p.fds[fd]; ok {
		f.offset = pos
	}
}
