// Package autosave debounces editor commits per (scope, field) key.
package autosave

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/obs"
)

// DefaultDelay is the quiet period before a scheduled commit runs.
const DefaultDelay = 500 * time.Millisecond

// ErrClosed is returned when scheduling on a closed Scheduler.
var ErrClosed = errors.New("autosave scheduler closed")

// Key identifies one debounced field. Scope is usually a note id.
type Key struct {
	Scope string
	Field string
}

// State is the save indicator for a key.
type State int

const (
	Idle State = iota
	Saving
	Saved
)

func (s State) String() string {
	switch s {
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	default:
		return "idle"
	}
}

// Status is what an editor shows next to a field.
type Status struct {
	State   State
	SavedAt time.Time
}

type pendingCommit struct {
	timer  Timer
	gen    uint64
	commit func()
}

// Scheduler coalesces rapid edits: each Schedule call for a key replaces the
// previous one, and only the last commit runs once the key has been quiet for
// the configured delay.
type Scheduler struct {
	clock  Clock
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	gen     uint64
	pending map[Key]*pendingCommit
	running map[Key]int
	savedAt map[Key]time.Time
	closed  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithDelay overrides DefaultDelay. Non-positive values are ignored.
func WithDelay(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.delay = d
		}
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:   RealClock{},
		delay:   DefaultDelay,
		logger:  obs.Pkg("autosave"),
		pending: make(map[Key]*pendingCommit),
		running: make(map[Key]int),
		savedAt: make(map[Key]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Delay returns the debounce window.
func (s *Scheduler) Delay() time.Duration {
	return s.delay
}

// Schedule replaces any pending commit for key with commit.
func (s *Scheduler) Schedule(key Key, commit func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errs.Wrap(errs.FailedPrecondition, "autosave is closed", ErrClosed)
	}
	if prev, ok := s.pending[key]; ok {
		prev.timer.Stop()
	}
	s.gen++
	gen := s.gen
	p := &pendingCommit{gen: gen, commit: commit}
	p.timer = s.clock.AfterFunc(s.delay, func() { s.fire(key, gen) })
	s.pending[key] = p
	return nil
}

// fire runs the commit for key unless it was superseded or cancelled after
// the timer was armed.
func (s *Scheduler) fire(key Key, gen uint64) {
	s.mu.Lock()
	p, ok := s.pending[key]
	if !ok || p.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.running[key]++
	s.mu.Unlock()

	s.run(key, p.commit)
}

func (s *Scheduler) run(key Key, commit func()) {
	defer func() {
		s.mu.Lock()
		s.running[key]--
		if s.running[key] <= 0 {
			delete(s.running, key)
		}
		s.savedAt[key] = s.clock.Now()
		s.mu.Unlock()
	}()
	commit()
	s.logger.Debug("autosave_commit", "scope", key.Scope, "field", key.Field)
}

// Cancel drops the pending commit for key. Reports whether one was pending.
func (s *Scheduler) Cancel(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(key)
}

func (s *Scheduler) cancelLocked(key Key) bool {
	p, ok := s.pending[key]
	if !ok {
		return false
	}
	p.timer.Stop()
	delete(s.pending, key)
	return true
}

// Forget cancels the pending commit for key and drops its save status.
// Reports whether a commit was pending.
func (s *Scheduler) Forget(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.savedAt, key)
	return s.cancelLocked(key)
}

// CancelScope drops every pending commit in scope and forgets its save
// status. Returns the number of commits dropped.
func (s *Scheduler) CancelScope(scope string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key := range s.pending {
		if key.Scope == scope && s.cancelLocked(key) {
			n++
		}
	}
	for key := range s.savedAt {
		if key.Scope == scope {
			delete(s.savedAt, key)
		}
	}
	return n
}

// Flush runs every pending commit immediately, oldest first.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	type job struct {
		key Key
		p   *pendingCommit
	}
	jobs := make([]job, 0, len(s.pending))
	for key, p := range s.pending {
		p.timer.Stop()
		jobs = append(jobs, job{key: key, p: p})
		s.running[key]++
	}
	s.pending = make(map[Key]*pendingCommit)
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool { return jobs[i].p.gen < jobs[j].p.gen })
	for _, j := range jobs {
		s.run(j.key, j.p.commit)
	}
	return len(jobs)
}

// Close cancels every pending commit and rejects further scheduling.
// Call Flush first to keep pending edits.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.pending {
		s.cancelLocked(key)
	}
	s.closed = true
}

// Status reports the save indicator for key.
func (s *Scheduler) Status(key Key) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pending[key]; ok || s.running[key] > 0 {
		return Status{State: Saving, SavedAt: s.savedAt[key]}
	}
	if at, ok := s.savedAt[key]; ok {
		return Status{State: Saved, SavedAt: at}
	}
	return Status{State: Idle}
}

// Pending returns the number of commits waiting on a timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
