package notes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kuitang/inkpad/internal/errs"
)

// Store holds the note collection and the active-note pointer.
//
// Store is not safe for concurrent use; callers serialize access (the
// workspace holds the lock).
type Store struct {
	notes    []Note
	index    map[string]int
	activeID string
	now      func() time.Time
	newID    func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides note id allocation.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		index: make(map[string]int),
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts an empty note and returns its id. The active selection is
// left untouched so callers decide whether to select it.
func (s *Store) Create() string {
	id := s.newID()
	for _, taken := s.index[id]; taken; _, taken = s.index[id] {
		id = s.newID()
	}
	s.notes = append(s.notes, Note{
		ID:           id,
		Title:        DefaultTitle,
		LastModified: s.now(),
	})
	s.index[id] = len(s.notes) - 1
	return id
}

// Update merges the supplied fields into the note and refreshes LastModified.
// Unknown ids are ignored. Reports whether a note was changed.
func (s *Store) Update(id string, params UpdateParams) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	note := &s.notes[i]
	if params.Title != nil {
		note.Title = *params.Title
	}
	if params.Content != nil {
		note.Content = *params.Content
	}
	note.LastModified = s.nextTimestamp(note.LastModified)
	return true
}

// nextTimestamp keeps LastModified non-decreasing even if the clock steps back.
func (s *Store) nextTimestamp(prev time.Time) time.Time {
	now := s.now()
	if now.Before(prev) {
		return prev
	}
	return now
}

// Delete removes a note. When it was active, the first remaining note in
// collection order becomes active, or the selection is cleared.
// Reports whether a note was removed.
func (s *Store) Delete(id string) bool {
	i, ok := s.index[id]
	if !ok {
		return false
	}
	s.notes = append(s.notes[:i], s.notes[i+1:]...)
	s.reindex()

	if s.activeID == id {
		s.activeID = ""
		if len(s.notes) > 0 {
			s.activeID = s.notes[0].ID
		}
	}
	return true
}

func (s *Store) reindex() {
	s.index = make(map[string]int, len(s.notes))
	for i, n := range s.notes {
		s.index[n.ID] = i
	}
}

// SetActive selects a note. Unknown ids are rejected so the selection never
// dangles.
func (s *Store) SetActive(id string) error {
	if _, ok := s.index[id]; !ok {
		return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", id), ErrUnknownNote)
	}
	s.activeID = id
	return nil
}

// ClearActive removes the active selection.
func (s *Store) ClearActive() {
	s.activeID = ""
}

// ActiveID returns the selected note id, or "" when nothing is selected.
func (s *Store) ActiveID() string {
	return s.activeID
}

// Active returns the selected note.
func (s *Store) Active() (Note, bool) {
	if s.activeID == "" {
		return Note{}, false
	}
	return s.Get(s.activeID)
}

// Get returns a copy of the note with the given id.
func (s *Store) Get(id string) (Note, bool) {
	i, ok := s.index[id]
	if !ok {
		return Note{}, false
	}
	return s.notes[i], true
}

// Exists reports whether id names a note.
func (s *Store) Exists(id string) bool {
	_, ok := s.index[id]
	return ok
}

// Len returns the number of notes.
func (s *Store) Len() int {
	return len(s.notes)
}

// All returns the notes in collection (insertion) order.
func (s *Store) All() []Note {
	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

// List returns notes whose title contains search (case-insensitive), most
// recently modified first. Ties keep collection order.
func (s *Store) List(search string) []Note {
	needle := strings.ToLower(search)
	out := make([]Note, 0, len(s.notes))
	for _, n := range s.notes {
		if needle == "" || strings.Contains(strings.ToLower(n.Title), needle) {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}

// Restore replaces the collection with previously persisted notes. Duplicate
// ids keep their first occurrence. The active selection is cleared when it no
// longer resolves.
func (s *Store) Restore(notes []Note) {
	s.notes = make([]Note, 0, len(notes))
	s.index = make(map[string]int, len(notes))
	for _, n := range notes {
		if n.ID == "" {
			continue
		}
		if _, dup := s.index[n.ID]; dup {
			continue
		}
		s.notes = append(s.notes, n)
		s.index[n.ID] = len(s.notes) - 1
	}
	if _, ok := s.index[s.activeID]; !ok {
		s.activeID = ""
	}
}
