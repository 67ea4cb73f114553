package autosave

import (
	"errors"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestScheduler() (*Scheduler, *FakeClock) {
	clock := NewFakeClock(epoch)
	return NewScheduler(WithClock(clock), WithDelay(500*time.Millisecond)), clock
}

type commitLog struct {
	mu      sync.Mutex
	commits []string
}

func (l *commitLog) commit(v string) func() {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.commits = append(l.commits, v)
	}
}

func (l *commitLog) values() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.commits...)
}

// =============================================================================
// Property: a burst of edits inside the window commits exactly once, with the last value
// =============================================================================

func testSchedule_Coalesces_Properties(t *rapid.T) {
	s, clock := newTestScheduler()
	var log commitLog
	key := Key{Scope: "note", Field: "title"}

	values := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,8}`), 1, 20).Draw(t, "values")
	for _, v := range values {
		if err := s.Schedule(key, log.commit(v)); err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		gap := rapid.IntRange(0, 499).Draw(t, "gapMs")
		clock.Advance(time.Duration(gap) * time.Millisecond)
		if got := log.values(); len(got) != 0 {
			t.Fatalf("committed inside the debounce window: %v", got)
		}
	}

	clock.Advance(500 * time.Millisecond)
	got := log.values()
	if len(got) != 1 || got[0] != values[len(values)-1] {
		t.Fatalf("expected single commit of %q, got %v", values[len(values)-1], got)
	}
	if clock.Pending() != 0 {
		t.Fatalf("timers leaked: %d", clock.Pending())
	}
}

func TestSchedule_Coalesces_Properties(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testSchedule_Coalesces_Properties)
}

func FuzzSchedule_Coalesces_Properties(f *testing.F) {
	f.Add([]byte{0x00})
	f.Fuzz(rapid.MakeFuzz(testSchedule_Coalesces_Properties))
}

// =============================================================================
// Example-based tests
// =============================================================================

func TestSchedule_KeysAreIndependent(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	title := Key{Scope: "n1", Field: "title"}
	content := Key{Scope: "n1", Field: "content"}

	_ = s.Schedule(title, log.commit("T"))
	clock.Advance(300 * time.Millisecond)
	_ = s.Schedule(content, log.commit("C"))
	clock.Advance(200 * time.Millisecond)

	if got := log.values(); len(got) != 1 || got[0] != "T" {
		t.Fatalf("title should commit on its own schedule, got %v", got)
	}
	if st := s.Status(content); st.State != Saving {
		t.Fatalf("content should still be saving, got %v", st.State)
	}

	clock.Advance(300 * time.Millisecond)
	if got := log.values(); len(got) != 2 || got[1] != "C" {
		t.Fatalf("content commit missing, got %v", got)
	}
}

func TestStatus_Transitions(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	key := Key{Scope: "n1", Field: "title"}

	if st := s.Status(key); st.State != Idle {
		t.Fatalf("fresh key should be idle, got %v", st.State)
	}
	_ = s.Schedule(key, func() {})
	if st := s.Status(key); st.State != Saving {
		t.Fatalf("scheduled key should be saving, got %v", st.State)
	}
	clock.Advance(500 * time.Millisecond)
	st := s.Status(key)
	if st.State != Saved {
		t.Fatalf("committed key should be saved, got %v", st.State)
	}
	if !st.SavedAt.Equal(epoch.Add(500 * time.Millisecond)) {
		t.Fatalf("unexpected SavedAt %v", st.SavedAt)
	}
}

func TestCancelScope_DropsOnlyThatScope(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	_ = s.Schedule(Key{Scope: "a", Field: "title"}, log.commit("a-title"))
	_ = s.Schedule(Key{Scope: "a", Field: "content"}, log.commit("a-content"))
	_ = s.Schedule(Key{Scope: "b", Field: "title"}, log.commit("b-title"))

	if n := s.CancelScope("a"); n != 2 {
		t.Fatalf("CancelScope dropped %d commits, want 2", n)
	}
	clock.Advance(time.Second)

	if got := log.values(); len(got) != 1 || got[0] != "b-title" {
		t.Fatalf("unexpected commits %v", got)
	}
	if clock.Pending() != 0 {
		t.Fatalf("timers leaked: %d", clock.Pending())
	}
}

func TestCancel_PreventsCommit(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	key := Key{Scope: "n", Field: "title"}
	_ = s.Schedule(key, log.commit("x"))
	if !s.Cancel(key) {
		t.Fatal("Cancel reported nothing pending")
	}
	if s.Cancel(key) {
		t.Fatal("second Cancel should be a no-op")
	}
	clock.Advance(time.Second)
	if got := log.values(); len(got) != 0 {
		t.Fatalf("cancelled commit ran: %v", got)
	}
	if st := s.Status(key); st.State != Idle {
		t.Fatalf("cancelled key should be idle, got %v", st.State)
	}
}

func TestForget_DropsPendingAndSavedStatus(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	saved := Key{Scope: "n", Field: "title#1"}
	pending := Key{Scope: "n", Field: "content#1"}
	other := Key{Scope: "n", Field: "content#2"}

	_ = s.Schedule(saved, log.commit("title"))
	clock.Advance(time.Second)
	_ = s.Schedule(pending, log.commit("mine"))
	_ = s.Schedule(other, log.commit("theirs"))

	if s.Forget(saved) {
		t.Fatal("saved key had nothing pending")
	}
	if !s.Forget(pending) {
		t.Fatal("Forget missed a pending commit")
	}
	clock.Advance(time.Second)

	if got := log.values(); len(got) != 2 || got[0] != "title" || got[1] != "theirs" {
		t.Fatalf("commits = %v, want [title theirs]", got)
	}
	if st := s.Status(saved); st.State != Idle {
		t.Fatalf("forgotten key should be idle, got %v", st.State)
	}
	if st := s.Status(other); st.State != Saved {
		t.Fatalf("untouched key should be saved, got %v", st.State)
	}
}

func TestFlush_RunsPendingInScheduleOrder(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	_ = s.Schedule(Key{Scope: "n", Field: "content"}, log.commit("first"))
	_ = s.Schedule(Key{Scope: "n", Field: "title"}, log.commit("second"))

	if n := s.Flush(); n != 2 {
		t.Fatalf("Flush ran %d commits, want 2", n)
	}
	got := log.values()
	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("unexpected flush order %v", got)
	}

	clock.Advance(time.Second)
	if got := log.values(); len(got) != 2 {
		t.Fatalf("flushed commit ran again: %v", got)
	}
}

func TestClose_CancelsAndRejects(t *testing.T) {
	t.Parallel()
	s, clock := newTestScheduler()
	var log commitLog
	_ = s.Schedule(Key{Scope: "n", Field: "title"}, log.commit("x"))
	s.Close()
	clock.Advance(time.Second)
	if got := log.values(); len(got) != 0 {
		t.Fatalf("commit ran after Close: %v", got)
	}
	err := s.Schedule(Key{Scope: "n", Field: "title"}, log.commit("y"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestFire_StaleGenerationIsIgnored(t *testing.T) {
	t.Parallel()
	s, _ := newTestScheduler()
	var log commitLog
	key := Key{Scope: "n", Field: "title"}
	_ = s.Schedule(key, log.commit("old"))
	staleGen := s.gen
	_ = s.Schedule(key, log.commit("new"))

	// A timer that was already running when it got superseded.
	s.fire(key, staleGen)
	if got := log.values(); len(got) != 0 {
		t.Fatalf("superseded timer committed: %v", got)
	}
	if s.Pending() != 1 {
		t.Fatalf("stale fire disturbed the live commit, pending=%d", s.Pending())
	}
}

func TestRealClock_FiresCommit(t *testing.T) {
	t.Parallel()
	s := NewScheduler(WithDelay(10 * time.Millisecond))
	done := make(chan struct{})
	_ = s.Schedule(Key{Scope: "n", Field: "title"}, func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("commit never fired")
	}
}
