package pushcore

import "context"

// DatumEntry is one versioned entry inside a data-center snapshot.
type DatumEntry struct {
	Version int64
	Payload []byte
}

// Datum is a data-center-scoped snapshot of the entries backing a
// dataInfoId, keyed by entry identifier.
type Datum struct {
	DataCenter string
	Entries    map[string]DatumEntry
}

// entryVersions extracts the per-entry version map a subscriber uses to
// record what it has acknowledged.
func (d Datum) entryVersions() map[string]int64 {
	out := make(map[string]int64, len(d.Entries))
	for id, e := range d.Entries {
		out[id] = e.Version
	}
	return out
}

// Subscriber is a client interest registered on a connection. Ownership of
// the underlying version state lives with the subscription store (out of
// scope per spec.md §1); besides the identity getters, the core only calls
// the two version methods.
type Subscriber interface {
	ID() string
	DataInfoID() string
	Scope() string
	AssembleType() string
	ClientVersion() string
	SourceAddress() string

	// CheckVersion reports whether fetchSeqStart for dataCenter is not
	// already superseded by a snapshot this subscriber has observed
	// through another path. false means a strictly newer snapshot has
	// already been delivered.
	CheckVersion(dataCenter string, fetchSeqStart int64) bool

	// CheckAndUpdateVersion atomically advances the subscriber's version
	// state for dataCenter if, and only if, the supplied range is
	// strictly newer than what is currently recorded. Implementations
	// must be safe for concurrent use.
	CheckAndUpdateVersion(dataCenter string, pushVersion int64, perEntryVersions map[string]int64, fetchSeqStart, fetchSeqEnd int64) bool
}

// PushPayload is the opaque wire payload produced by PushDataGenerator and
// handed to ClientNodeService. The core never inspects its contents.
type PushPayload interface{}

// PushDataGenerator merges a data center's Datum on behalf of a
// representative subscriber and encodes it for delivery. Implementations
// must be pure / side-effect free and safe for concurrent use from every
// dispatcher worker.
type PushDataGenerator interface {
	MergeDatum(subscriber Subscriber, dataCenter string, datumMap map[string]Datum) (Datum, error)
	CreatePushData(merged Datum, subscriberMap map[string]Subscriber, pushVersion int64) (PushPayload, error)
}

// PushCallback is handed to ClientNodeService.PushWithCallback and invoked
// exactly once, on the executor the core supplied, with either outcome.
type PushCallback interface {
	OnSuccess(response any)
	OnFailure(err error, channelConnected bool)
}

// CallbackExecutor runs a callback body. ClientNodeService implementations
// must invoke PushCallback methods through the executor passed to
// PushWithCallback rather than on their own goroutines, so the core's
// bounded-concurrency policy (spec.md §5) applies uniformly.
type CallbackExecutor interface {
	Execute(fn func())
}

// ClientNodeService delivers a payload to a client address and reports the
// outcome asynchronously through callback. Implementations must return
// promptly; the actual network round trip happens on the implementation's
// own goroutines and completes by invoking callback on executor.
type ClientNodeService interface {
	PushWithCallback(ctx context.Context, payload PushPayload, remoteAddress string, callback PushCallback, executor CallbackExecutor) error
}
