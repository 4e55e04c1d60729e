package pushcore

import (
	"sync"
	"time"
)

// conflictHandler is notified whenever firePush rejects an incoming task
// because it was not strictly newer than the task already pending for the
// same PendingKey.
type conflictHandler func(key PendingKey, incoming, existing *PushTask)

// pendingBuffer is the mapping from PendingKey to the freshest debounced
// task awaiting dispatch (spec.md §4.1). The fast path (no existing entry)
// is a lock-free insert-if-absent; the slow path (coalesce-or-reject) is
// guarded by mu so only one producer resolves a given conflict at a time.
// The watchdog's drain also takes mu, so a task is never observed half
// replaced.
type pendingBuffer struct {
	mu         sync.Mutex
	entries    sync.Map // PendingKey -> *PushTask
	onConflict conflictHandler
}

func newPendingBuffer(onConflict conflictHandler) *pendingBuffer {
	return &pendingBuffer{onConflict: onConflict}
}

// fire accepts task as a new pending entry or as a replacement for an
// older one, returning true iff accepted. It implements spec.md §4.1
// steps 2-3.
func (p *pendingBuffer) fire(task *PushTask) bool {
	key := task.PendingKeyOf()

	if _, loaded := p.entries.LoadOrStore(key, task); !loaded {
		return true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	cur, ok := p.entries.Load(key)
	if !ok {
		p.entries.Store(key, task)
		return true
	}

	curTask := cur.(*PushTask)
	if task.afterThan(curTask) {
		task.inheritExpiry(curTask)
		p.entries.Store(key, task)
		pushesCoalesced.Add(1)
		return true
	}

	if p.onConflict != nil {
		p.onConflict(key, task, curTask)
	}
	return false
}

// drainReady removes and returns every pending task that is either
// NoDelay or past its expireTimestamp, per spec.md §4.2 step 2. Callers
// must submit the returned tasks to the dispatcher after releasing
// whatever lock they hold so producers are not blocked during dispatch.
func (p *pendingBuffer) drainReady(now time.Time) []*PushTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	var ready []*PushTask
	nowNanos := now.UnixNano()
	p.entries.Range(func(k, v any) bool {
		t := v.(*PushTask)
		if t.NoDelay || t.expireTimestamp.Load() <= nowNanos {
			ready = append(ready, t)
			p.entries.Delete(k)
		}
		return true
	})
	return ready
}

// size reports the number of tasks currently pending, for tests and
// observability.
func (p *pendingBuffer) size() int {
	n := 0
	p.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
