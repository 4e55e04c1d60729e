package pushcore

import (
	"time"

	"golang.org/x/sync/semaphore"
)

// boundedExecutor runs callback bodies on their own goroutines, bounded by
// a weighted semaphore so a burst of simultaneous transport completions
// cannot spin up unbounded goroutines (spec.md §5). When the semaphore is
// saturated, Execute falls back to running fn on the calling goroutine
// rather than blocking the transport's completion path indefinitely.
type boundedExecutor struct {
	sem *semaphore.Weighted
}

func newBoundedExecutor(limit int64) *boundedExecutor {
	return &boundedExecutor{sem: semaphore.NewWeighted(limit)}
}

func (b *boundedExecutor) Execute(fn func()) {
	if b.sem.TryAcquire(1) {
		go func() {
			defer b.sem.Release(1)
			fn()
		}()
		return
	}
	fn()
}

// retryDelay implements the linear backoff from spec.md §4.5:
// firstDelay + increment*(retryCount-1), never negative.
func retryDelay(firstDelay, increment time.Duration, retryCount uint32) time.Duration {
	if retryCount <= 1 {
		return firstDelay
	}
	d := firstDelay + increment*time.Duration(retryCount-1)
	if d < 0 {
		return 0
	}
	return d
}

// taskCallback adapts one dispatch attempt's outcome into the core's
// success/retry/give-up decision (spec.md §4.5). A fresh taskCallback is
// constructed per attempt and handed to ClientNodeService.PushWithCallback
// along with the token the attempt was stored under in the in-flight
// registry, so completion can tell a stale attempt from the current one.
type taskCallback struct {
	core  *Core
	task  *PushTask
	key   PushingKey
	token uint64
}

func (cb *taskCallback) OnSuccess(response any) {
	cb.core.handleSuccess(cb.task, cb.key, cb.token, response)
}

func (cb *taskCallback) OnFailure(err error, channelConnected bool) {
	cb.core.handleFailure(cb.task, cb.key, cb.token, err, channelConnected)
}
