package pushcore

import "sync"

// InMemorySubscriber is a concrete, concurrency-safe Subscriber suitable
// for tests and for simple deployments that keep version state in process
// memory rather than behind an external subscription store.
type InMemorySubscriber struct {
	id            string
	dataInfoID    string
	scope         string
	assembleType  string
	clientVersion string
	sourceAddress string

	mu       sync.Mutex
	versions map[string]subscriberVersionState
}

type subscriberVersionState struct {
	pushVersion      int64
	perEntryVersions map[string]int64
	fetchSeqEnd      int64
}

// NewInMemorySubscriber constructs a subscriber with no recorded version
// state for any data center.
func NewInMemorySubscriber(id, dataInfoID, scope, assembleType, clientVersion, sourceAddress string) *InMemorySubscriber {
	return &InMemorySubscriber{
		id:            id,
		dataInfoID:    dataInfoID,
		scope:         scope,
		assembleType:  assembleType,
		clientVersion: clientVersion,
		sourceAddress: sourceAddress,
		versions:      make(map[string]subscriberVersionState),
	}
}

func (s *InMemorySubscriber) ID() string            { return s.id }
func (s *InMemorySubscriber) DataInfoID() string    { return s.dataInfoID }
func (s *InMemorySubscriber) Scope() string         { return s.scope }
func (s *InMemorySubscriber) AssembleType() string  { return s.assembleType }
func (s *InMemorySubscriber) ClientVersion() string { return s.clientVersion }
func (s *InMemorySubscriber) SourceAddress() string { return s.sourceAddress }

// CheckVersion reports whether fetchSeqStart is not already superseded by
// the last snapshot recorded for dataCenter.
func (s *InMemorySubscriber) CheckVersion(dataCenter string, fetchSeqStart int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.versions[dataCenter]
	if !ok {
		return true
	}
	return fetchSeqStart >= st.fetchSeqEnd
}

// CheckAndUpdateVersion advances the recorded state for dataCenter iff the
// supplied range is strictly newer, returning whether it did.
func (s *InMemorySubscriber) CheckAndUpdateVersion(dataCenter string, pushVersion int64, perEntryVersions map[string]int64, fetchSeqStart, fetchSeqEnd int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.versions[dataCenter]
	if ok && fetchSeqStart < st.fetchSeqEnd {
		return false
	}

	s.versions[dataCenter] = subscriberVersionState{
		pushVersion:      pushVersion,
		perEntryVersions: perEntryVersions,
		fetchSeqEnd:      fetchSeqEnd,
	}
	return true
}
