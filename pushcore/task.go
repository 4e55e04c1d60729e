package pushcore

import (
	"sort"
	"strings"
	"time"

	"go.uber.org/atomic"
)

// PendingKey is the coalescing identity of a push intent: two intents with
// equal PendingKeys are the same "conversation" and must coalesce.
type PendingKey struct {
	DataCenter  string
	Addr        string
	Subscribers string // sorted, comma-joined subscriber identifiers
}

// PushingKey is the in-flight identity of a push intent: the dispatcher
// and in-flight registry serialize on this.
type PushingKey struct {
	DataInfoID    string
	Addr          string
	Scope         string
	AssembleType  string
	ClientVersion string
}

// PushTask is one push intent plus the mutable timing/retry state the core
// threads through its lifecycle. Fields written after construction are
// held as atomics so producers, the watchdog, the dispatcher, and callback
// goroutines can read and write them without a task-level lock.
type PushTask struct {
	TraceID         string
	CreateTimestamp time.Time
	NoDelay         bool

	FetchSeqStart int64
	FetchSeqEnd   int64
	DataCenter    string
	PushVersion   int64
	DatumMap      map[string]Datum
	Addr          string

	SubscriberMap map[string]Subscriber
	// Subscriber is the representative used for keying; every value in
	// SubscriberMap is validated at construction to share its
	// (dataInfoId, scope, assembleType, clientVersion).
	Subscriber Subscriber

	expireTimestamp atomic.Int64 // unix nanoseconds
	pushTimestamp   atomic.Int64 // unix nanoseconds; 0 means never pushed
	retryCount      atomic.Uint32
}

// NewPushTask constructs a PushTask, validating the invariants from
// spec.md §3. debounce sets the initial expireTimestamp (now + debounce);
// the representative subscriber is chosen deterministically as the one
// whose subscriber ID sorts first, so construction is reproducible in
// tests regardless of map iteration order.
func NewPushTask(
	traceID string,
	noDelay bool,
	pushVersion int64,
	dataCenter string,
	addr string,
	subscriberMap map[string]Subscriber,
	datumMap map[string]Datum,
	fetchSeqStart, fetchSeqEnd int64,
	debounce time.Duration,
	now time.Time,
) (*PushTask, error) {
	if fetchSeqStart > fetchSeqEnd {
		return nil, ErrInvalidSeqRange
	}
	if len(subscriberMap) == 0 {
		return nil, ErrEmptySubscribers
	}

	ids := make([]string, 0, len(subscriberMap))
	for id := range subscriberMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rep := subscriberMap[ids[0]]

	for _, id := range ids[1:] {
		sub := subscriberMap[id]
		if sub.DataInfoID() != rep.DataInfoID() ||
			sub.Scope() != rep.Scope() ||
			sub.AssembleType() != rep.AssembleType() ||
			sub.ClientVersion() != rep.ClientVersion() {
			return nil, ErrSubscriberMismatch
		}
	}

	t := &PushTask{
		TraceID:         traceID,
		CreateTimestamp: now,
		NoDelay:         noDelay,
		FetchSeqStart:   fetchSeqStart,
		FetchSeqEnd:     fetchSeqEnd,
		DataCenter:      dataCenter,
		PushVersion:     pushVersion,
		DatumMap:        datumMap,
		Addr:            addr,
		SubscriberMap:   subscriberMap,
		Subscriber:      rep,
	}
	t.expireTimestamp.Store(now.Add(debounce).UnixNano())
	return t, nil
}

// PendingKeyOf returns the coalescing identity for this task.
func (t *PushTask) PendingKeyOf() PendingKey {
	ids := make([]string, 0, len(t.SubscriberMap))
	for id := range t.SubscriberMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return PendingKey{
		DataCenter:  t.DataCenter,
		Addr:        t.Addr,
		Subscribers: strings.Join(ids, ","),
	}
}

// PushingKeyOf returns the in-flight identity for this task.
func (t *PushTask) PushingKeyOf() PushingKey {
	return PushingKey{
		DataInfoID:    t.Subscriber.DataInfoID(),
		Addr:          t.Addr,
		Scope:         t.Subscriber.Scope(),
		AssembleType:  t.Subscriber.AssembleType(),
		ClientVersion: t.Subscriber.ClientVersion(),
	}
}

// afterThan implements the half-open freshness order from spec.md §3: A is
// after B iff A.FetchSeqStart >= B.FetchSeqEnd. Overlapping ranges are not
// strictly after either task and must be treated as a conflict, not a
// replacement.
func (t *PushTask) afterThan(other *PushTask) bool {
	return t.FetchSeqStart >= other.FetchSeqEnd
}

// ExpireTimestamp is the earliest wall-clock time at which the task
// becomes eligible for dispatch by the watchdog.
func (t *PushTask) ExpireTimestamp() time.Time {
	return time.Unix(0, t.expireTimestamp.Load())
}

// inheritExpiry copies prev's expireTimestamp onto t. Used when t replaces
// prev in the pending buffer: a stream of rapidly arriving intents must
// not indefinitely postpone dispatch by resetting the debounce window.
func (t *PushTask) inheritExpiry(prev *PushTask) {
	t.expireTimestamp.Store(prev.expireTimestamp.Load())
}

// expireAfter sets a fresh expireTimestamp, used when scheduling a retry.
func (t *PushTask) expireAfter(now time.Time, d time.Duration) {
	t.expireTimestamp.Store(now.Add(d).UnixNano())
}

// PushTimestamp is the wall-clock time the task was handed to transport,
// or the zero time if it has never been dispatched.
func (t *PushTask) PushTimestamp() time.Time {
	ns := t.pushTimestamp.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (t *PushTask) stampPushTimestamp(now time.Time) {
	t.pushTimestamp.Store(now.UnixNano())
}

// RetryCount is the number of retries attempted for this task, including
// an attempt that found the retry budget exhausted and was dropped.
func (t *PushTask) RetryCount() uint32 {
	return t.retryCount.Load()
}

// incrementRetry atomically advances the retry counter and returns the new
// value, matching spec.md §4.5 step 1.
func (t *PushTask) incrementRetry() uint32 {
	return t.retryCount.Inc()
}

// perEntryVersions extracts the per-entry version map for this task's data
// center, used when advancing subscriber version state on success.
func (t *PushTask) perEntryVersions() map[string]int64 {
	d, ok := t.DatumMap[t.DataCenter]
	if !ok {
		return nil
	}
	return d.entryVersions()
}
