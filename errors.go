package wtlfu

import "fmt"

// Sentinel error kinds (spec §7). Use errors.Is against these to
// distinguish failure categories; wrapped errors carry the underlying
// cause via %w.
var (
	// ErrInvalidConfiguration is returned by New when the supplied options
	// are contradictory (e.g. both maximum_size and maximum_weight set) or
	// otherwise unbuildable.
	ErrInvalidConfiguration = fmt.Errorf("wtlfu: invalid configuration")

	// ErrLoaderFailure names the loader-failure kind. No operation returns
	// it: a refresh-after-write loader error is logged and counted in Stats.
	ErrLoaderFailure = fmt.Errorf("wtlfu: loader failure")

	// ErrWriterFailure wraps a user writer hook's error; propagated to the
	// caller, aborting the mutation.
	ErrWriterFailure = fmt.Errorf("wtlfu: writer failure")

	// ErrExecutorRejection names the executor-rejection kind. No operation
	// returns it: a rejected refresh is logged and abandoned, and a rejected
	// maintenance task falls back to synchronous execution.
	ErrExecutorRejection = fmt.Errorf("wtlfu: executor rejected task")

	// ErrWeightViolation is returned when a weigher produces a negative
	// weight.
	ErrWeightViolation = fmt.Errorf("wtlfu: weigher returned a negative weight")
)

// configError wraps ErrInvalidConfiguration with a reason.
func configError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfiguration, reason)
}

// writerError wraps ErrWriterFailure with the user writer's own error.
func writerError(err error) error {
	return fmt.Errorf("%w: %w", ErrWriterFailure, err)
}

// weightError wraps ErrWeightViolation with the offending weight.
func weightError(weight int) error {
	return fmt.Errorf("%w: got %d", ErrWeightViolation, weight)
}
