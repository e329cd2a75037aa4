// Package readiness decides whether a terminated service should be launched
// again, and how long to wait before doing so.
package readiness

import (
	"sync"
	"time"
)

// DefaultWait is used when a retry block does not set a wait.
const DefaultWait = 5 * time.Second

// Unbounded is the attempt limit of a retry block without attempts.
const Unbounded = -1

// Config is the readiness configuration of one service. A nil *Config means
// no retry block was configured and the service is never restarted.
type Config struct {
	Attempts *int           `json:"attempts,omitempty"` // nil means unbounded
	Wait     *time.Duration `json:"wait,omitempty"`     // nil means DefaultWait
}

// Retry counts restart attempts against a maximum.
type Retry struct {
	mu   sync.Mutex
	max  int
	wait time.Duration
	used int
}

func NewRetry(attempts *int, wait *time.Duration) *Retry {
	r := &Retry{max: Unbounded, wait: DefaultWait}
	if attempts != nil && *attempts >= 0 {
		r.max = *attempts
	}
	if wait != nil && *wait >= 0 {
		r.wait = *wait
	}
	return r
}

// Available reports whether at least one attempt is left.
func (r *Retry) Available() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available()
}

func (r *Retry) available() bool {
	return r.max == Unbounded || r.used < r.max
}

// Consume uses one attempt. It returns false, and changes nothing, when the
// attempts are exhausted.
func (r *Retry) Consume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.available() {
		return false
	}
	r.used++
	return true
}

// Used returns the number of consumed attempts.
func (r *Retry) Used() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.used
}

// Max returns the attempt limit, or Unbounded.
func (r *Retry) Max() int { return r.max }

func (r *Retry) Wait() time.Duration { return r.wait }

// Decision is the outcome of evaluating a Policy.
type Decision struct {
	Restart bool
	Wait    time.Duration
}

// Policy maps the last observed outcome of a run to a restart decision.
type Policy struct {
	retry *Retry // nil when no retry block was configured
}

func New(cfg *Config) *Policy {
	if cfg == nil {
		return &Policy{}
	}
	return &Policy{retry: NewRetry(cfg.Attempts, cfg.Wait)}
}

// Configured reports whether the policy can ever request a restart.
func (p *Policy) Configured() bool { return p.retry != nil }

// Retry exposes the underlying attempt counter, nil when not configured.
func (p *Policy) Retry() *Retry { return p.retry }

// Decide evaluates the policy without consuming an attempt. exited tells
// whether the run is over; returnCode is nil when the run never produced one
// (spawn failure), which counts as an abnormal exit.
func (p *Policy) Decide(exited bool, returnCode *int) Decision {
	if p.retry == nil || !exited {
		return Decision{}
	}
	if returnCode != nil && *returnCode == 0 {
		return Decision{}
	}
	if !p.retry.Available() {
		return Decision{}
	}
	return Decision{Restart: true, Wait: p.retry.Wait()}
}

// Reset consumes one attempt ahead of a restart. It reports whether an
// attempt was available; after exhaustion it is a no-op.
func (p *Policy) Reset() bool {
	if p.retry == nil {
		return false
	}
	return p.retry.Consume()
}
