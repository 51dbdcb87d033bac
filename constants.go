package kerncore

// Thread priorities.
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// Scheduling and bookkeeping limits, bit-exact with the spec's §6 constant
// table.
const (
	// TimeSlice is the number of ticks a thread may hold the CPU before
	// the tick handler requests a yield on interrupt return.
	TimeSlice = 4

	// TimerFreq is the number of timer ticks per simulated second.
	TimerFreq = 100

	// MaxPriorityDonation bounds the number of outgoing donation records
	// a single thread may hold at once.
	MaxPriorityDonation = 8

	// MaxChildren bounds the number of live children a process tracks.
	MaxChildren = 10

	// MaxOpenFD bounds a process's open file-descriptor table. FDs 0 and 1
	// are reserved for stdin/stdout, so allocation starts at 2.
	MaxOpenFD   = 10
	InitialFD   = 2

	// MaxVaddrMaps bounds the number of concurrent mmap/stack/load
	// mappings a process's VM map array holds.
	MaxVaddrMaps = 10

	// MaxStackPages bounds demand-paged stack growth per process.
	MaxStackPages = 32

	// ThreadMagic is the sentinel written at TCB construction and checked
	// on every thread_current() to detect kernel-stack overflow.
	ThreadMagic = 0xcd6abf4b
)

// Physical memory and block device geometry.
const (
	// PageSize is the hardware page size in bytes.
	PageSize = 4096

	// BlockSectorSize is BLOCK_SECTOR_SIZE: the fixed sector size of the
	// simulated swap block device.
	BlockSectorSize = 512
)
