package pushcore

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// watchdog drives periodic drains of the pending buffer and lets a
// producer request an immediate out-of-band drain (spec.md §4.2, "signaled
// drain"). A signal arriving while one is already pending is coalesced
// into a single wake-up, matching the teacher's health-check loop pattern
// of a buffered, non-blocking wake channel.
type watchdog struct {
	clock    clock.Clock
	interval time.Duration
	tick     func(now time.Time)

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup
}

func newWatchdog(clk clock.Clock, interval time.Duration, tick func(now time.Time)) *watchdog {
	return &watchdog{
		clock:    clk,
		interval: interval,
		tick:     tick,
		wake:     make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
	}
}

func (w *watchdog) start() {
	w.wg.Add(1)
	go w.run()
}

func (w *watchdog) run() {
	defer w.wg.Done()
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			w.tick(now)
		case <-w.wake:
			w.tick(w.clock.Now())
		case <-w.stopCh:
			return
		}
	}
}

// signal requests an immediate drain without waiting for the next tick.
// Non-blocking: a pending signal already in flight absorbs this one.
func (w *watchdog) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// stop signals the loop to exit and waits at most timeout for it to do so.
func (w *watchdog) stop(timeout time.Duration) error {
	close(w.stopCh)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("pushcore: watchdog did not stop within %s", timeout)
	}
}
