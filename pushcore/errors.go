package pushcore

import "errors"

// Errors returned while constructing a PushTask or operating the Core.
var (
	// ErrEmptySubscribers is returned by NewPushTask when subscriberMap has
	// no entries — spec.md requires subscriberMap to be non-empty.
	ErrEmptySubscribers = errors.New("pushcore: subscriberMap must not be empty")

	// ErrInvalidSeqRange is returned by NewPushTask when fetchSeqStart is
	// greater than fetchSeqEnd.
	ErrInvalidSeqRange = errors.New("pushcore: fetchSeqStart must be <= fetchSeqEnd")

	// ErrSubscriberMismatch is returned by NewPushTask when the values in
	// subscriberMap disagree on (dataInfoId, scope, assembleType,
	// clientVersion). spec.md documents this as an open question the
	// source leaves to producer discipline; this implementation validates
	// it explicitly and fails loudly instead.
	ErrSubscriberMismatch = errors.New("pushcore: subscribers in subscriberMap disagree on dataInfoId/scope/assembleType/clientVersion")

	// ErrAlreadyStarted is returned by Core.Start when the core is already
	// running.
	ErrAlreadyStarted = errors.New("pushcore: core already started")

	// ErrQueueFull is returned by the keyed dispatcher when a destination's
	// bounded queue is saturated. The caller (the watchdog) logs and drops;
	// a later intent for the same pending-key will recreate the task.
	ErrQueueFull = errors.New("pushcore: dispatcher queue full for pushing key")

	// ErrInvokeTimeout is the sentinel a ClientNodeService implementation
	// should wrap (via errors.Join or fmt.Errorf with %w) when a push
	// fails because the remote callback never arrived in time. The
	// callback handler logs this case with its own message ("push
	// invocation timed out"), at error level like other push failures.
	ErrInvokeTimeout = errors.New("pushcore: push invocation timed out")

	// ErrNotStarted is returned by Core.Stop when the core was never
	// started (or has already been stopped).
	ErrNotStarted = errors.New("pushcore: core not started")
)
