package manager

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vawter.tech/stopper"

	"github.com/loykin/localcompose/internal/bus"
)

// DefaultSupervisorInterval is how often the supervisor scans the pool.
const DefaultSupervisorInterval = 500 * time.Millisecond

// Supervisor periodically applies each executor's readiness policy. When a
// restart is due it resets the executor and, once the policy's backoff has
// passed, publishes Restart for the scheduler to act on. Backoffs of
// different executors run concurrently.
type Supervisor struct {
	pool     *Pool
	bus      *bus.Bus
	interval time.Duration
	log      *slog.Logger

	mu   sync.Mutex
	sctx *stopper.Context
	stop sync.Once
}

func NewSupervisor(pool *Pool, b *bus.Bus, interval time.Duration, log *slog.Logger) *Supervisor {
	if interval <= 0 {
		interval = DefaultSupervisorInterval
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Supervisor{pool: pool, bus: b, interval: interval, log: log}
}

// Launch starts the background loop. It returns immediately.
func (s *Supervisor) Launch(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sctx != nil {
		return
	}
	s.sctx = stopper.WithContext(ctx)
	s.sctx.Go(s.loop)
}

// Stop ends the loop, waking any backoff wait in progress. Safe to call
// more than once and before Launch.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	sctx := s.sctx
	s.mu.Unlock()
	if sctx == nil {
		return
	}
	s.stop.Do(func() { sctx.Stop(100 * time.Millisecond) })
}

// Wait blocks until the loop has returned.
func (s *Supervisor) Wait() error {
	s.mu.Lock()
	sctx := s.sctx
	s.mu.Unlock()
	if sctx == nil {
		return nil
	}
	return sctx.Wait()
}

func (s *Supervisor) loop(ctx *stopper.Context) error {
	// restarts waiting out their backoff, by due time
	pending := map[*Executor]time.Time{}
	defer func() {
		for e := range pending {
			e.CancelRestart()
		}
	}()
	next := s.interval
	for {
		if !s.sleep(ctx, next) {
			return nil
		}
		now := time.Now()
		for _, e := range s.pool.All() {
			if _, waiting := pending[e]; waiting {
				continue
			}
			d, ok := e.prepareRestart()
			if !ok {
				continue
			}
			s.log.Debug("restart scheduled", "service", e.Name(), "wait", d.Wait,
				"attempt", e.Policy().Retry().Used())
			pending[e] = now.Add(d.Wait)
		}
		next = s.interval
		for e, due := range pending {
			if ctx.IsStopping() {
				return nil
			}
			if left := time.Until(due); left > 0 {
				next = min(next, left)
				continue
			}
			delete(pending, e)
			s.bus.Send(bus.Restart{Meta: e.meta()})
		}
	}
}

// sleep waits for d and reports false when the supervisor was stopped first.
func (s *Supervisor) sleep(ctx *stopper.Context, d time.Duration) bool {
	if ctx.IsStopping() {
		return false
	}
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return !ctx.IsStopping()
	case <-ctx.Stopping():
		return false
	}
}
