// Package kerncore error types follow a wrapped-cause style so callers can
// use errors.Is/errors.As through the chain.
package kerncore

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by scheduler and VM operations.
var (
	// ErrSwapExhausted is returned when eviction cannot allocate a swap slot.
	ErrSwapExhausted = errors.New("kerncore: swap device exhausted")

	// ErrNoFreeFrame is returned when the frame table has no free slot and
	// eviction could not free one either.
	ErrNoFreeFrame = errors.New("kerncore: no free frame and eviction failed")

	// ErrMapTableFull is returned by Process.AddMapping when a process has
	// reached MaxVaddrMaps concurrent mappings.
	ErrMapTableFull = errors.New("kerncore: vaddr map table full")

	// ErrOverlappingVaddr is returned when a requested mapping overlaps an
	// existing one in the same process.
	ErrOverlappingVaddr = errors.New("kerncore: overlapping virtual address range")

	// ErrNotMappable is returned when a requested vaddr fails
	// Process.IsMappableVaddr classification.
	ErrNotMappable = errors.New("kerncore: virtual address is not mappable")

	// ErrStackLimitReached is returned by Kernel.tryGrowStack once
	// MaxStackPages has been allocated.
	ErrStackLimitReached = errors.New("kerncore: stack page limit reached")

	// ErrChildLimitReached is returned when a process already has
	// MaxChildren live children.
	ErrChildLimitReached = errors.New("kerncore: child process limit reached")

	// ErrFDTableFull is returned when a process already has MaxOpenFD open
	// descriptors.
	ErrFDTableFull = errors.New("kerncore: file descriptor table full")
)

// FatalError represents a condition the spec requires to be fatal: a
// violated invariant detected at runtime, rather than a recoverable
// resource-exhaustion error. Pintos would PANIC(); kerncore panics with a
// FatalError value so a recover() at the simulation boundary can still log
// and unwrap the cause.
type FatalError struct {
	// Reason names the invariant that was violated, e.g. "donation
	// overflow" or "stack overflow sentinel corrupted".
	Reason string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *FatalError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("kerncore: fatal: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("kerncore: fatal: %s", e.Reason)
}

// Unwrap returns the underlying cause for use with errors.Is and errors.As.
func (e *FatalError) Unwrap() error {
	return e.Cause
}

// fatalf panics with a *FatalError built from reason and an optional cause.
// Every "fatal panic" path named in the error-handling design (§7) funnels
// through here so tests can recover() and assert on the Reason.
func fatalf(cause error, format string, args ...any) {
	panic(&FatalError{Reason: fmt.Sprintf(format, args...), Cause: cause})
}

// WrapError wraps an error with a message, preserving the cause chain for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
