package pushcore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoGenerator struct{}

func (echoGenerator) MergeDatum(_ Subscriber, dataCenter string, datumMap map[string]Datum) (Datum, error) {
	return datumMap[dataCenter], nil
}

func (echoGenerator) CreatePushData(merged Datum, _ map[string]Subscriber, _ int64) (PushPayload, error) {
	return merged, nil
}

type recordedPush struct {
	payload  PushPayload
	addr     string
	callback PushCallback
	executor CallbackExecutor
}

// fakeClient never calls the callback on its own; tests invoke it directly
// to drive the success/failure paths deterministically.
type fakeClient struct {
	mu     sync.Mutex
	pushes []recordedPush
	onPush func(recordedPush) error
}

func (c *fakeClient) PushWithCallback(_ context.Context, payload PushPayload, addr string, cb PushCallback, executor CallbackExecutor) error {
	rec := recordedPush{payload: payload, addr: addr, callback: cb, executor: executor}
	c.mu.Lock()
	c.pushes = append(c.pushes, rec)
	c.mu.Unlock()
	if c.onPush != nil {
		return c.onPush(rec)
	}
	return nil
}

func (c *fakeClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushes)
}

func (c *fakeClient) last() recordedPush {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushes[len(c.pushes)-1]
}

func newTestCore(t *testing.T, cfg *StaticConfig, client ClientNodeService, mockClock *clock.Mock) *Core {
	t.Helper()
	return NewCore(cfg, echoGenerator{}, client, WithClock(mockClock))
}

func datumMapWithEntry(dataCenter string, version int64) map[string]Datum {
	return map[string]Datum{
		dataCenter: {
			DataCenter: dataCenter,
			Entries:    map[string]DatumEntry{"e1": {Version: version}},
		},
	}
}

// Scenario 1 (spec.md §8): single push, success.
func TestCore_SinglePushSuccess(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	err := core.FirePush("trace-1", false, 1, "A", "addr-1", map[string]Subscriber{"s1": sub}, datumMapWithEntry("A", 1), 10, 10)
	require.NoError(t, err)

	mockClock.Add(150 * time.Millisecond)
	ready := core.pending.drainReady(mockClock.Now())
	require.Len(t, ready, 1)

	core.runDispatch(ready[0])
	require.Equal(t, 1, client.count())

	rec := client.last()
	rec.callback.OnSuccess(nil)

	assert.False(t, sub.CheckVersion("A", 9), "subscriber version should have advanced past seq 9")
	assert.Equal(t, 0, core.inflight.size())
}

// Scenario 3 (spec.md §8): overlapping ranges reject.
func TestCore_OverlappingRangeRejectedButFirstStillDispatches(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	subs := map[string]Subscriber{"s1": sub}

	require.NoError(t, core.FirePush("t1", false, 1, "A", "addr-1", subs, datumMapWithEntry("A", 1), 10, 10))
	require.NoError(t, core.FirePush("t2", false, 2, "A", "addr-1", subs, datumMapWithEntry("A", 2), 9, 11))

	mockClock.Add(150 * time.Millisecond)
	ready := core.pending.drainReady(mockClock.Now())
	require.Len(t, ready, 1, "the overlapping intent must be rejected, not coalesced")
	assert.Equal(t, int64(10), ready[0].FetchSeqStart)
}

// Scenario 4 (spec.md §8): noDelay preempts the debounce window.
func TestCore_NoDelayDrainsWithoutWaitingForDebounce(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	subs := map[string]Subscriber{"s1": sub}

	require.NoError(t, core.FirePush("t1", false, 1, "A", "addr-1", subs, datumMapWithEntry("A", 1), 10, 10))
	require.NoError(t, core.FirePush("t2", true, 2, "A", "addr-1", subs, datumMapWithEntry("A", 2), 11, 11))

	ready := core.pending.drainReady(mockClock.Now())
	require.Len(t, ready, 1)
	assert.Equal(t, int64(11), ready[0].FetchSeqStart)
}

// Scenario 5 (spec.md §8): retry path with eventual success.
func TestCore_RetryThenSucceed(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	task, err := NewPushTask("t1", true, 1, "A", "addr-1", map[string]Subscriber{"s1": sub}, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)

	pk := task.PushingKeyOf()
	core.runDispatch(task)
	require.Equal(t, 1, client.count())

	core.handleFailure(task, pk, 1, errors.New("transport exploded"), true)
	assert.Equal(t, 1, core.pending.size(), "a retryable failure must requeue the task")
	assert.Equal(t, 0, core.inflight.size())

	mockClock.Add(60 * time.Millisecond)
	ready := core.pending.drainReady(mockClock.Now())
	require.Len(t, ready, 1)

	core.runDispatch(ready[0])
	require.Equal(t, 2, client.count())
	client.last().callback.OnSuccess(nil)

	assert.False(t, sub.CheckVersion("A", 9))
}

// Scenario 5 continued: retry budget exhaustion drops the task.
func TestCore_RetryBudgetExhausted(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig() // PushTaskRetryTimes = 2
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	task, err := NewPushTask("t1", true, 1, "A", "addr-1", map[string]Subscriber{"s1": sub}, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)
	pk := task.PushingKeyOf()

	core.handleFailure(task, pk, 0, errors.New("boom"), true) // r=1
	require.Equal(t, 1, core.pending.size())
	requeued := core.pending.drainReady(mockClock.Now().Add(time.Hour))
	require.Len(t, requeued, 1)

	core.handleFailure(requeued[0], pk, 0, errors.New("boom"), true) // r=2
	require.Equal(t, 1, core.pending.size())
	requeued = core.pending.drainReady(mockClock.Now().Add(time.Hour))
	require.Len(t, requeued, 1)

	core.handleFailure(requeued[0], pk, 0, errors.New("boom"), true) // r=3 > retryTimes=2
	assert.Equal(t, 0, core.pending.size(), "a task must never be retried more than pushTaskRetryTimes")
}

// Channel disconnected: give up silently, no retry.
func TestCore_ChannelDisconnectedDoesNotRetry(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	task, err := NewPushTask("t1", true, 1, "A", "addr-1", map[string]Subscriber{"s1": sub}, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)
	pk := task.PushingKeyOf()

	core.handleFailure(task, pk, 0, errors.New("boom"), false)
	assert.Equal(t, 0, core.pending.size())
}

// Scenario 6 (spec.md §8): a stuck prior push is evicted once the span
// exceeds 2x the exchange timeout.
func TestCore_StuckPriorPushIsEvicted(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig() // exchangeTimeOut = 500ms -> threshold 1000ms
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	subs := map[string]Subscriber{"s1": sub}

	t1, err := NewPushTask("t1", true, 1, "A", "addr-1", subs, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)
	core.runDispatch(t1)
	require.Equal(t, 1, client.count())

	mockClock.Add(1100 * time.Millisecond)

	t2, err := NewPushTask("t2", true, 2, "A", "addr-1", subs, datumMapWithEntry("A", 2), 11, 11, 0, mockClock.Now())
	require.NoError(t, err)

	assert.True(t, core.checkPushing(t2, t2.PushingKeyOf()), "a stuck prior push must not block the next task")
}

// The prior push is still within its legitimate callback window: the
// current task is retried with reason "waiting" instead of proceeding.
func TestCore_FreshPriorPushCausesWaitingRetry(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	subs := map[string]Subscriber{"s1": sub}

	t1, err := NewPushTask("t1", true, 1, "A", "addr-1", subs, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)
	core.runDispatch(t1)

	mockClock.Add(100 * time.Millisecond)

	t2, err := NewPushTask("t2", true, 2, "A", "addr-1", subs, datumMapWithEntry("A", 2), 11, 11, 0, mockClock.Now())
	require.NoError(t, err)

	assert.False(t, core.checkPushing(t2, t2.PushingKeyOf()))
	assert.Equal(t, 1, core.pending.size(), "the current task should be requeued as a waiting retry")
}

// Stop-push switch blocks new dispatch regardless of producer traffic.
func TestCore_StopPushSwitchBlocksDispatch(t *testing.T) {
	mockClock := clock.NewMock()
	cfg := DefaultStaticConfig()
	cfg.StopPush = true
	client := &fakeClient{}
	core := newTestCore(t, cfg, client, mockClock)

	sub := NewInMemorySubscriber("s1", "dataInfoId-1", "scope-1", "assemble-1", "v1", "10.0.0.1:9000")
	task, err := NewPushTask("t1", true, 1, "A", "addr-1", map[string]Subscriber{"s1": sub}, datumMapWithEntry("A", 1), 10, 10, 0, mockClock.Now())
	require.NoError(t, err)

	core.runDispatch(task)
	assert.Equal(t, 0, client.count())
}
