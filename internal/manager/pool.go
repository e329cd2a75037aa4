package manager

import (
	"sort"
	"sync"
)

// Pool is the registry of executors keyed by service name.
type Pool struct {
	mu        sync.RWMutex
	executors map[string]*Executor
}

func NewPool() *Pool {
	return &Pool{executors: make(map[string]*Executor)}
}

// Add registers e under its name. A later executor with the same name
// replaces the earlier one.
func (p *Pool) Add(e *Executor) {
	p.mu.Lock()
	p.executors[e.Name()] = e
	p.mu.Unlock()
}

func (p *Pool) Get(name string) (*Executor, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.executors[name]
	return e, ok
}

// All returns the registered executors sorted by name.
func (p *Pool) All() []*Executor {
	p.mu.RLock()
	out := make([]*Executor, 0, len(p.executors))
	for _, e := range p.executors {
		out = append(out, e)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.executors)
}

func (p *Pool) StartAll() {
	for _, e := range p.All() {
		e.Start()
	}
}

// StopAll stops every executor that has not reported a return code yet.
func (p *Pool) StopAll(force bool) {
	for _, e := range p.All() {
		if e.State().ReturnCode == nil {
			e.Stop(force)
		}
	}
}

func (p *Pool) AllStarted() bool { return p.Status().AllStarted }

func (p *Pool) AllStopped() bool { return p.Status().AllStopped }

func (p *Pool) AnyStopped() bool { return p.Status().AnyStopped }

func (p *Pool) AnyNeedsRestart() bool { return p.Status().AnyNeedsRestart }

// PoolStatus aggregates executor states; each executor is read once.
type PoolStatus struct {
	AllStarted      bool
	AllStopped      bool
	AnyStopped      bool
	AnyNeedsRestart bool
	Running         int
}

func (p *Pool) Status() PoolStatus {
	st := PoolStatus{AllStarted: true, AllStopped: true}
	for _, e := range p.All() {
		s := e.State()
		st.AllStarted = st.AllStarted && s.Started
		st.AllStopped = st.AllStopped && s.Stopped
		st.AnyStopped = st.AnyStopped || s.Stopped
		st.AnyNeedsRestart = st.AnyNeedsRestart || s.NeedsRestart
		if s.Started && !s.Stopped {
			st.Running++
		}
	}
	return st
}

// Wait blocks until every executor's run goroutine has returned.
func (p *Pool) Wait() {
	for _, e := range p.All() {
		e.Wait()
	}
}
