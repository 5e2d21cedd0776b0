package chm

import "errors"

// Sentinel errors for the taxonomy in spec §7. Call sites wrap these
// with fmt.Errorf("...: %w", ErrX) so callers can errors.Is against a
// stable category while still getting a face/station/variable-specific
// message.
var (
	// Configuration errors, fatal at startup.
	ErrUnresolvedDependency = errors.New("unresolved-dependency")
	ErrAmbiguousProvider    = errors.New("ambiguous-provider")
	ErrCycle                = errors.New("cycle")

	// Input errors, fatal at startup.
	ErrMissingFile       = errors.New("missing-file")
	ErrInconsistentDt    = errors.New("inconsistent-dt")
	ErrEmptyOverlap      = errors.New("empty-overlap")
	ErrProjectionFailure = errors.New("projection-failure")

	// Per-tick errors.
	ErrMissingVariable = errors.New("missing-required-variable")

	// Per-module physics errors.
	ErrInsufficientData = errors.New("insufficient-data")

	// Checkpoint errors.
	ErrCheckpointMismatch = errors.New("checkpoint-mismatch")
)

// MissingValue is the sentinel written to a face variable by a module
// whose contract permits it to fail softly (spec §7, "per-module
// physics").
const MissingValue = -9999.0
