package crowd

import "errors"

// Sentinel error kinds. Callers classify failures with errors.Is; everything
// the engine returns wraps one of these.
var (
	// ErrInvalidInput marks a malformed sample: missing camera ID, zero
	// timestamp, non-positive coverage area, or a detection confidence
	// outside [0,1]. The sample is rejected; history is untouched.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOutOfOrderSample marks a sample whose timestamp precedes the last
	// processed sample for the same camera. The sample is dropped with a
	// warning; history is untouched.
	ErrOutOfOrderSample = errors.New("out of order sample")

	// ErrQueueOverflow reports that a camera's bounded queue was full and
	// the oldest queued sample was discarded to admit the new one.
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrCameraUnknown reports a query for a camera the engine has never
	// processed a sample for.
	ErrCameraUnknown = errors.New("camera unknown")

	// ErrEngineStopped reports a submission after Stop.
	ErrEngineStopped = errors.New("engine stopped")
)
