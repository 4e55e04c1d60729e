package pushcore

import (
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// dispatchFunc is invoked by a dispatcher worker for each task it pulls off
// its queue. It runs on the worker goroutine, so it must not block on
// anything other than the transport call it is making.
type dispatchFunc func(task *PushTask)

// keyedDispatcher routes a task to one of a fixed pool of workers, chosen
// by a stable hash of its PushingKey, so every task for a given
// destination+dataInfoId is always handled by the same worker and
// therefore never runs concurrently with another task for that key
// (spec.md §5). Each worker has its own bounded queue; a full queue is
// reported to the caller rather than applying backpressure, mirroring the
// teacher's domainForwarder-per-destination transaction queues.
type keyedDispatcher struct {
	workers []chan *PushTask
	fn      dispatchFunc
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

func newKeyedDispatcher(poolSize, queueSize int, fn dispatchFunc) *keyedDispatcher {
	d := &keyedDispatcher{
		workers: make([]chan *PushTask, poolSize),
		fn:      fn,
		stopCh:  make(chan struct{}),
	}
	for i := range d.workers {
		d.workers[i] = make(chan *PushTask, queueSize)
	}
	return d
}

// start launches one goroutine per worker queue. Must be called once,
// before the first submit.
func (d *keyedDispatcher) start() {
	for i, ch := range d.workers {
		d.wg.Add(1)
		go d.runWorker(i, ch)
	}
}

func (d *keyedDispatcher) runWorker(_ int, ch chan *PushTask) {
	defer d.wg.Done()
	for {
		select {
		case task, ok := <-ch:
			if !ok {
				return
			}
			d.fn(task)
		case <-d.stopCh:
			return
		}
	}
}

// submit enqueues task onto the worker selected by key, returning
// ErrQueueFull without blocking if that worker's queue is full (spec.md
// §4.3 step 2, "if the destination worker's queue is full, the push is
// abandoned").
func (d *keyedDispatcher) submit(key PushingKey, task *PushTask) error {
	idx := workerIndex(key, len(d.workers))
	select {
	case d.workers[idx] <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// workerIndex hashes the full PushingKey tuple with FNV-1a so the same key
// always lands on the same worker, independent of process restarts or map
// iteration order.
func workerIndex(key PushingKey, n int) int {
	h := fnv.New32a()
	for _, part := range [...]string{
		key.DataInfoID, key.Addr, key.Scope, key.AssembleType, key.ClientVersion,
	} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return int(h.Sum32() % uint32(n))
}

// stop halts all workers. When drain is true, each worker's queue is
// closed and allowed to finish the tasks already buffered before exiting;
// when false, workers abandon their queues immediately. stop waits at
// most timeout for every worker to exit, returning an error if any are
// still running past the deadline (a wedged transport call, most likely).
func (d *keyedDispatcher) stop(drain bool, timeout time.Duration) error {
	if drain {
		for _, ch := range d.workers {
			close(ch)
		}
	} else {
		close(d.stopCh)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pushcore: dispatcher workers did not stop within %s", timeout)
	}
}
