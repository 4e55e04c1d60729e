package pushcore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Core wires the pending buffer, in-flight registry, watchdog loop and
// keyed dispatcher together into the push dispatch pipeline described in
// spec.md §2. Construct one with NewCore, call Start before calling
// FirePush, and Stop when the server is shutting down.
type Core struct {
	cfg       SessionServerConfig
	generator PushDataGenerator
	client    ClientNodeService
	clock     clock.Clock
	logger    *zap.SugaredLogger
	executor  CallbackExecutor

	pending    *pendingBuffer
	inflight   *inFlightRegistry
	dispatcher *keyedDispatcher
	watchdog   *watchdog

	tokenSeq atomic.Uint64

	mu      sync.Mutex
	started bool
}

// Option customizes a Core at construction time.
type Option func(*Core)

// WithLogger overrides the default no-op logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Core) { c.logger = logger }
}

// WithClock overrides the wall clock, for deterministic tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Core) { c.clock = clk }
}

// WithCallbackExecutor overrides the default bounded executor (at most
// 1000 concurrent callback goroutines; beyond that a callback runs on the
// caller's goroutine).
func WithCallbackExecutor(executor CallbackExecutor) Option {
	return func(c *Core) { c.executor = executor }
}

// NewCore constructs a Core ready to Start. cfg, generator and client are
// required collaborators (spec.md §6); passing a nil generator or client
// is a programming error and panics, matching the teacher's
// fail-at-construction stance on missing collaborators.
func NewCore(cfg SessionServerConfig, generator PushDataGenerator, client ClientNodeService, opts ...Option) *Core {
	if cfg == nil {
		panic("pushcore: cfg must not be nil")
	}
	if generator == nil {
		panic("pushcore: generator must not be nil")
	}
	if client == nil {
		panic("pushcore: client must not be nil")
	}

	c := &Core{
		cfg:       cfg,
		generator: generator,
		client:    client,
		clock:     clock.New(),
		logger:    zap.NewNop().Sugar(),
		inflight:  newInFlightRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.executor == nil {
		c.executor = newBoundedExecutor(1000)
	}
	c.pending = newPendingBuffer(c.onConflict)
	return c
}

func (c *Core) onConflict(key PendingKey, incoming, existing *PushTask) {
	pushesRejected.Add(1)
	c.logger.Infow("coalescing conflict, keeping existing task",
		"dataCenter", key.DataCenter,
		"addr", key.Addr,
		"incomingSeq", [2]int64{incoming.FetchSeqStart, incoming.FetchSeqEnd},
		"existingSeq", [2]int64{existing.FetchSeqStart, existing.FetchSeqEnd},
	)
}

// Start launches the watchdog and the keyed dispatcher pool. Returns
// ErrAlreadyStarted if called twice without an intervening Stop.
func (c *Core) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}

	c.dispatcher = newKeyedDispatcher(c.cfg.PushTaskExecutorPoolSize(), c.cfg.PushTaskExecutorQueueSize(), c.runDispatch)
	c.dispatcher.start()

	c.watchdog = newWatchdog(c.clock, 100*time.Millisecond, c.tick)
	c.watchdog.start()

	c.started = true
	c.logger.Infow("push dispatch core started",
		"poolSize", c.cfg.PushTaskExecutorPoolSize(),
		"queueSize", c.cfg.PushTaskExecutorQueueSize(),
	)
	return nil
}

// Stop halts the watchdog and dispatcher. When drain is true, tasks
// already queued on dispatcher workers are allowed to run to completion
// before workers exit; in-flight pushes awaiting a transport callback are
// never interrupted either way. Each sub-component is given up to
// clientNodeExchangeTimeOut to stop cleanly; a wedged component's timeout
// is reported back to the caller rather than blocking Stop forever, with
// both potential errors aggregated into one.
func (c *Core) Stop(drain bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return ErrNotStarted
	}

	timeout := c.cfg.ClientNodeExchangeTimeOut()
	var result *multierror.Error
	if err := c.watchdog.stop(timeout); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.dispatcher.stop(drain, timeout); err != nil {
		result = multierror.Append(result, err)
	}

	c.started = false
	c.logger.Infow("push dispatch core stopped", "drained", drain)
	return result.ErrorOrNil()
}

func (c *Core) nextToken() uint64 {
	return c.tokenSeq.Inc()
}

// FirePush is the producer-facing entry point (spec.md §4.1). It is
// non-blocking and never returns an error to report a coalescing
// rejection or a set stop-push switch — both are ordinary outcomes,
// logged and accounted for via telemetry rather than surfaced to the
// caller. A non-nil error here means the intent itself was malformed
// (see NewPushTask).
func (c *Core) FirePush(
	traceID string,
	noDelay bool,
	pushVersion int64,
	dataCenter, addr string,
	subscriberMap map[string]Subscriber,
	datumMap map[string]Datum,
	fetchSeqStart, fetchSeqEnd int64,
) error {
	now := c.clock.Now()
	debounce := time.Duration(c.cfg.PushDataTaskDebouncingMillis()) * time.Millisecond

	task, err := NewPushTask(traceID, noDelay, pushVersion, dataCenter, addr, subscriberMap, datumMap, fetchSeqStart, fetchSeqEnd, debounce, now)
	if err != nil {
		return err
	}

	if c.cfg.IsStopPushSwitch() {
		c.logger.Debugw("stop-push switch set, dropping fired task", "traceID", traceID)
		return nil
	}

	if !c.pending.fire(task) {
		return nil
	}
	pushesFired.Add(1)
	if noDelay && c.watchdog != nil {
		c.watchdog.signal()
	}
	return nil
}

// tick is the watchdog's per-iteration body (spec.md §4.2).
func (c *Core) tick(now time.Time) {
	if c.cfg.IsStopPushSwitch() {
		return
	}

	ready := c.pending.drainReady(now)
	for _, task := range ready {
		pk := task.PushingKeyOf()
		if err := c.dispatcher.submit(pk, task); err != nil {
			pushesAbandoned.Add(1)
			c.logger.Errorw("dispatcher submission failed, dropping task", "pushingKey", pk, "traceID", task.TraceID, "err", err)
		}
	}
}

// runDispatch is the dispatcher worker body (spec.md §4.3).
func (c *Core) runDispatch(task *PushTask) {
	if c.cfg.IsStopPushSwitch() {
		return
	}

	pk := task.PushingKeyOf()
	if !c.checkPushing(task, pk) {
		return
	}

	token := c.nextToken()
	defer func() {
		if r := recover(); r != nil {
			c.inflight.deleteIfMatch(pk, token)
			c.logger.Errorw("panic dispatching push", "pushingKey", pk, "traceID", task.TraceID, "panic", r)
		}
	}()

	merged, err := c.generator.MergeDatum(task.Subscriber, task.DataCenter, task.DatumMap)
	if err != nil {
		c.logger.Errorw("merge datum failed", "pushingKey", pk, "traceID", task.TraceID, "err", err)
		return
	}
	payload, err := c.generator.CreatePushData(merged, task.SubscriberMap, task.PushVersion)
	if err != nil {
		c.logger.Errorw("create push data failed", "pushingKey", pk, "traceID", task.TraceID, "err", err)
		return
	}

	task.stampPushTimestamp(c.clock.Now())
	c.inflight.store(pk, task, token)

	cb := &taskCallback{core: c, task: task, key: pk, token: token}
	if err := c.client.PushWithCallback(context.Background(), payload, task.Subscriber.SourceAddress(), cb, c.executor); err != nil {
		c.inflight.deleteIfMatch(pk, token)
		c.logger.Errorw("transport rejected push", "pushingKey", pk, "traceID", task.TraceID, "err", err)
		return
	}
	pushesDispatched.Add(1)
}

// checkPushing implements spec.md §4.4.
func (c *Core) checkPushing(task *PushTask, pk PushingKey) bool {
	prevEntry, ok := c.inflight.load(pk)
	if !ok {
		for _, sub := range task.SubscriberMap {
			if !sub.CheckVersion(task.DataCenter, task.FetchSeqStart) {
				c.logger.Warnw("stale snapshot already observed by subscriber",
					"pushingKey", pk, "subscriber", sub.ID(), "dataCenter", task.DataCenter)
				return false
			}
		}
		return true
	}

	prev := prevEntry.task
	if !task.afterThan(prev) {
		return false
	}

	span := c.clock.Now().Sub(time.Unix(0, prev.pushTimestamp.Load()))
	threshold := 2 * c.cfg.ClientNodeExchangeTimeOut()
	if span > threshold {
		c.inflight.forceDelete(pk)
		pushesStuck.Add(1)
		c.logger.Warnw("prior in-flight push stuck, evicting", "pushingKey", pk, "span", span, "threshold", threshold)
		return true
	}

	c.retry(task, "waiting")
	return false
}

// retry implements spec.md §4.5.
func (c *Core) retry(task *PushTask, reason string) {
	r := task.incrementRetry()
	maxRetries := c.cfg.PushTaskRetryTimes()
	if r > maxRetries {
		pushesAbandoned.Add(1)
		c.logger.Infow("retry budget exhausted, dropping task", "traceID", task.TraceID, "reason", reason, "retryCount", r)
		return
	}

	first := time.Duration(c.cfg.PushDataTaskRetryFirstDelayMillis()) * time.Millisecond
	inc := time.Duration(c.cfg.PushDataTaskRetryIncrementDelayMillis()) * time.Millisecond
	backoff := retryDelay(first, inc, r)

	task.expireAfter(c.clock.Now(), backoff)
	pushesRetried.Add(1)

	if !c.pending.fire(task) {
		c.logger.Infow("retry coalesced away by a fresher intent", "traceID", task.TraceID, "reason", reason)
	}
}

// handleSuccess implements the success half of spec.md §4.6.
func (c *Core) handleSuccess(task *PushTask, pk PushingKey, token uint64, _ any) {
	versions := task.perEntryVersions()
	for _, sub := range task.SubscriberMap {
		if !sub.CheckAndUpdateVersion(task.DataCenter, task.PushVersion, versions, task.FetchSeqStart, task.FetchSeqEnd) {
			c.logger.Warnw("version advance skipped, already advanced by another path",
				"subscriber", sub.ID(), "dataCenter", task.DataCenter, "traceID", task.TraceID)
		}
	}
	c.inflight.deleteIfMatch(pk, token)
	pushesSucceeded.Add(1)
}

// handleFailure implements the failure half of spec.md §4.6.
func (c *Core) handleFailure(task *PushTask, pk PushingKey, token uint64, err error, channelConnected bool) {
	c.inflight.deleteIfMatch(pk, token)

	if !channelConnected {
		c.logger.Warnw("channel disconnected, giving up on task", "traceID", task.TraceID, "err", err)
		return
	}

	if errors.Is(err, ErrInvokeTimeout) {
		c.logger.Errorw("push invocation timed out", "traceID", task.TraceID, "err", err)
	} else {
		c.logger.Errorw("push invocation failed", "traceID", task.TraceID, "err", err)
	}
	c.retry(task, "callbackErr")
}
