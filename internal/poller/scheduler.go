package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Scheduler runs polling cycles at a fixed interval.
//
// A cycle runs immediately on start. The next cycle is scheduled one
// interval after the previous cycle completed, so cycles never overlap and
// devices are always processed sequentially. Results are emitted to a
// channel that can be consumed by the caller.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	devices  []Device
	interval time.Duration
	fetch    FetchFunc
	submit   SubmitFunc
	results  chan CycleResult
	logger   *slog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu        sync.Mutex
	started   bool
	stopped   bool
	closeOnce sync.Once
}

// NewScheduler creates a new [Scheduler].
//
// Parameters:
//   - devices: Devices to process each cycle, in order
//   - interval: Pause between the end of one cycle and the start of the next;
//     a non-positive interval disables polling entirely
//   - fetch, submit: The two outbound calls of a cycle
//   - logger: Logger for cycle events
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. Results are available via [Scheduler.Results].
func NewScheduler(devices []Device, interval time.Duration, fetch FetchFunc, submit SubmitFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		devices:  devices,
		interval: interval,
		fetch:    fetch,
		submit:   submit,
		results:  make(chan CycleResult, len(devices)),
		logger:   logger,
	}
}

// Results returns a receive-only channel that emits [CycleResult] values.
//
// The channel is closed when the scheduler stops.
func (s *Scheduler) Results() <-chan CycleResult {
	return s.results
}

// Start begins the polling loop in a background goroutine.
//
// Start is non-blocking and returns immediately. The loop runs until
// [Scheduler.Stop] is called or the context is cancelled. If ctx is nil,
// context.Background() is used. Start is idempotent; if Stop was called
// before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	pollCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.closeOnce.Do(func() { close(s.results) })

		if s.interval <= 0 {
			s.logger.Info("polling disabled", "interval", s.interval.String())
			return
		}

		for {
			if !s.runCycle(pollCtx) {
				return
			}

			timer := time.NewTimer(s.interval)
			select {
			case <-pollCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
	}()
}

// runCycle runs one cycle and emits its results. It returns false when the
// context was cancelled.
func (s *Scheduler) runCycle(ctx context.Context) bool {
	for _, result := range RunOnce(ctx, s.devices, s.fetch, s.submit, s.logger) {
		select {
		case s.results <- result:
		case <-ctx.Done():
			return false
		}
	}
	return ctx.Err() == nil
}

// Stop halts the scheduler and waits for the loop to exit.
//
// Stop cancels the scheduler's context and blocks until the in-flight
// request (if any) returns and the results channel is closed.
// Stop is idempotent and safe to call before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()

	// ensure channel is closed even if Start() was never called
	s.closeOnce.Do(func() { close(s.results) })
}
