package pushcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTask(t *testing.T, seqStart, seqEnd int64, debounce time.Duration, now time.Time) *PushTask {
	t.Helper()
	task, err := NewPushTask("trace", false, 1, "DC1", "addr-1", testSubscribers("s1"), nil, seqStart, seqEnd, debounce, now)
	require.NoError(t, err)
	return task
}

func TestPendingBuffer_FirstFireAlwaysAccepted(t *testing.T) {
	p := newPendingBuffer(nil)
	now := time.Unix(0, 0)
	task := newTestTask(t, 10, 10, 100*time.Millisecond, now)

	assert.True(t, p.fire(task))
	assert.Equal(t, 1, p.size())
}

func TestPendingBuffer_NewerReplacesAndInheritsExpiry(t *testing.T) {
	p := newPendingBuffer(nil)
	now := time.Unix(0, 0)

	first := newTestTask(t, 10, 10, 100*time.Millisecond, now)
	require.True(t, p.fire(first))

	later := newTestTask(t, 11, 11, 100*time.Millisecond, now.Add(5*time.Millisecond))
	require.True(t, p.fire(later))

	assert.Equal(t, 1, p.size())
	assert.Equal(t, first.ExpireTimestamp(), later.ExpireTimestamp(),
		"the replacement must inherit the first task's expiry, not reset the debounce window")
}

func TestPendingBuffer_OverlappingRangeRejected(t *testing.T) {
	var conflicts int
	p := newPendingBuffer(func(key PendingKey, incoming, existing *PushTask) {
		conflicts++
	})
	now := time.Unix(0, 0)

	first := newTestTask(t, 10, 10, 100*time.Millisecond, now)
	require.True(t, p.fire(first))

	overlapping := newTestTask(t, 9, 11, 100*time.Millisecond, now)
	assert.False(t, p.fire(overlapping))
	assert.Equal(t, 1, conflicts)

	ready := p.drainReady(now.Add(200 * time.Millisecond))
	require.Len(t, ready, 1)
	assert.Equal(t, first.FetchSeqStart, ready[0].FetchSeqStart)
}

func TestPendingBuffer_DrainReadyRespectsExpiry(t *testing.T) {
	p := newPendingBuffer(nil)
	now := time.Unix(0, 0)

	notReady := newTestTask(t, 10, 10, 100*time.Millisecond, now)
	require.True(t, p.fire(notReady))

	assert.Empty(t, p.drainReady(now.Add(50*time.Millisecond)))

	ready := p.drainReady(now.Add(101 * time.Millisecond))
	require.Len(t, ready, 1)
	assert.Equal(t, 0, p.size())
}

func TestPendingBuffer_NoDelayDrainsImmediately(t *testing.T) {
	p := newPendingBuffer(nil)
	now := time.Unix(0, 0)

	task, err := NewPushTask("trace", true, 1, "DC1", "addr-1", testSubscribers("s1"), nil, 10, 10, 100*time.Millisecond, now)
	require.NoError(t, err)
	require.True(t, p.fire(task))

	ready := p.drainReady(now)
	require.Len(t, ready, 1)
}
