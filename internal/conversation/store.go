package conversation

import (
	"errors"
	"fmt"

	"github.com/kuitang/inkpad/internal/errs"
)

// ErrIllegalTransition is returned when a replacement would rewrite a message
// that is no longer pending.
var ErrIllegalTransition = errors.New("illegal message transition")

// Store maps note ids to ordered message threads.
//
// Store is not safe for concurrent use; the workspace serializes access.
type Store struct {
	threads map[string][]Message
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{threads: make(map[string][]Message)}
}

// AppendOrReplace writes msg into the thread for noteID. A message with the
// same id is replaced in place, otherwise msg is appended.
//
// Only pending messages may be replaced. Replaying an identical message is
// accepted as a no-op so a repeated resolution is harmless.
func (s *Store) AppendOrReplace(noteID string, msg Message) error {
	if msg.ID == "" {
		return errs.New(errs.InvalidArgument, "message id is required")
	}
	thread := s.threads[noteID]
	for i, existing := range thread {
		if existing.ID != msg.ID {
			continue
		}
		if existing == msg {
			return nil
		}
		if existing.Status != StatusPending {
			return errs.Wrap(errs.FailedPrecondition,
				fmt.Sprintf("message %s is %s and cannot be replaced", msg.ID, existing.Status),
				ErrIllegalTransition)
		}
		if existing.Role != msg.Role {
			return errs.Wrap(errs.FailedPrecondition,
				fmt.Sprintf("message %s cannot change role from %s to %s", msg.ID, existing.Role, msg.Role),
				ErrIllegalTransition)
		}
		thread[i] = msg
		return nil
	}
	s.threads[noteID] = append(thread, msg)
	return nil
}

// Thread returns a copy of the thread for noteID. Unknown notes yield an
// empty slice.
func (s *Store) Thread(noteID string) []Message {
	thread := s.threads[noteID]
	out := make([]Message, len(thread))
	copy(out, thread)
	return out
}

// Find looks up a single message.
func (s *Store) Find(noteID, msgID string) (Message, bool) {
	for _, m := range s.threads[noteID] {
		if m.ID == msgID {
			return m, true
		}
	}
	return Message{}, false
}

// Drop removes the thread for noteID.
func (s *Store) Drop(noteID string) {
	delete(s.threads, noteID)
}

// All returns a deep copy of every non-empty thread.
func (s *Store) All() map[string][]Message {
	out := make(map[string][]Message, len(s.threads))
	for id, thread := range s.threads {
		if len(thread) == 0 {
			continue
		}
		cp := make([]Message, len(thread))
		copy(cp, thread)
		out[id] = cp
	}
	return out
}

// Restore replaces every thread with persisted data. Messages without an id
// and repeated ids within a thread are skipped.
func (s *Store) Restore(threads map[string][]Message) {
	s.threads = make(map[string][]Message, len(threads))
	for noteID, thread := range threads {
		seen := make(map[string]bool, len(thread))
		kept := make([]Message, 0, len(thread))
		for _, m := range thread {
			if m.ID == "" || seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			kept = append(kept, m)
		}
		if len(kept) > 0 {
			s.threads[noteID] = kept
		}
	}
}
