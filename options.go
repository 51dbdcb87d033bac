package kerncore

// kernelOptions holds configuration resolved at Kernel construction time.
type kernelOptions struct {
	schedMode      SchedMode
	timerFreq      int
	logger         *Logger
	metricsEnabled bool
	userFrames     int
	swapSectors    int
	sectorSize     int
}

// --- Kernel Options ---

// KernelOption configures a Kernel instance.
type KernelOption interface {
	applyKernel(*kernelOptions) error
}

type kernelOptionImpl struct {
	applyFunc func(*kernelOptions) error
}

func (k *kernelOptionImpl) applyKernel(opts *kernelOptions) error {
	return k.applyFunc(opts)
}

// WithSchedMode selects priority-donation or MLFQS scheduling. Equivalent
// to the kernel command-line option "-o mlfqs": absent, priority
// scheduling with donation is used.
func WithSchedMode(mode SchedMode) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.schedMode = mode
		return nil
	}}
}

// WithTimerFreq overrides TIMER_FREQ (ticks per simulated second). Defaults
// to 100.
func WithTimerFreq(freq int) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.timerFreq = freq
		return nil
	}}
}

// WithLogger sets the structured logger used for scheduler and VM events.
// Defaults to a no-op logger.
func WithLogger(l *Logger) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.logger = l
		return nil
	}}
}

// WithMetrics enables latency-percentile and counter metrics collection.
func WithMetrics(enabled bool) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.metricsEnabled = enabled
		return nil
	}}
}

// WithUserPool sizes the simulated physical user pool, in pages. Defaults
// to 32 frames.
func WithUserPool(frames int) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.userFrames = frames
		return nil
	}}
}

// WithSwapDevice sizes the simulated swap block device. sectorSize
// defaults to 512 (BLOCK_SECTOR_SIZE) and sectors defaults to enough for
// 4x the user pool.
func WithSwapDevice(sectors, sectorSize int) KernelOption {
	return &kernelOptionImpl{func(opts *kernelOptions) error {
		opts.swapSectors = sectors
		opts.sectorSize = sectorSize
		return nil
	}}
}

// resolveKernelOptions applies KernelOption values over the defaults.
func resolveKernelOptions(userFrames int, opts []KernelOption) (*kernelOptions, error) {
	cfg := &kernelOptions{
		schedMode:   SchedPriority,
		timerFreq:   TimerFreq,
		logger:      NewNoOpLogger(),
		userFrames:  userFrames,
		sectorSize:  BlockSectorSize,
		swapSectors: userFrames * 4 * (PageSize / BlockSectorSize),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyKernel(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
