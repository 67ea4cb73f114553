package workspace

import (
	"fmt"
	"sync"

	"github.com/kuitang/inkpad/internal/autosave"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/kuitang/inkpad/internal/obs"
)

const (
	fieldTitle   = "title"
	fieldContent = "content"
)

// Editor is an open editing surface for one note. Edits are debounced per
// field and committed to the workspace when the field goes quiet. Each editor
// has its own autosave keys, so several editors may be open on one note.
type Editor struct {
	w      *Workspace
	noteID string
	title  autosave.Key
	body   autosave.Key

	mu     sync.Mutex
	closed bool
}

// OpenEditor opens an editor on a note.
func (w *Workspace) OpenEditor(noteID string) (*Editor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, closedErr()
	}
	if !w.notes.Exists(noteID) {
		return nil, noteNotFound(noteID)
	}
	w.editorSeq++
	return &Editor{
		w:      w,
		noteID: noteID,
		title:  autosave.Key{Scope: noteID, Field: fmt.Sprintf("%s#%d", fieldTitle, w.editorSeq)},
		body:   autosave.Key{Scope: noteID, Field: fmt.Sprintf("%s#%d", fieldContent, w.editorSeq)},
	}, nil
}

// NoteID returns the note being edited.
func (e *Editor) NoteID() string {
	return e.noteID
}

// EditTitle schedules a title commit.
func (e *Editor) EditTitle(title string) error {
	return e.schedule(e.title, fieldTitle, notes.TitleUpdate(title))
}

// EditContent schedules a content commit.
func (e *Editor) EditContent(content string) error {
	return e.schedule(e.body, fieldContent, notes.ContentUpdate(content))
}

func (e *Editor) schedule(key autosave.Key, field string, params notes.UpdateParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return closedErr()
	}
	return e.w.scheduler.Schedule(key, func() { e.w.commitEdit(e.noteID, field, params) })
}

// Status combines the save state of both fields: saving while either is
// pending, otherwise saved at the latest commit.
func (e *Editor) Status() autosave.Status {
	title := e.w.scheduler.Status(e.title)
	content := e.w.scheduler.Status(e.body)

	out := title
	if content.SavedAt.After(out.SavedAt) {
		out.SavedAt = content.SavedAt
	}
	switch {
	case title.State == autosave.Saving || content.State == autosave.Saving:
		out.State = autosave.Saving
	case title.State == autosave.Saved || content.State == autosave.Saved:
		out.State = autosave.Saved
	default:
		out.State = autosave.Idle
	}
	return out
}

// StatusText is the indicator shown next to the editor.
func (e *Editor) StatusText() string {
	switch e.Status().State {
	case autosave.Saving:
		return "Saving..."
	case autosave.Saved:
		return "Saved"
	default:
		return ""
	}
}

// Close tears the editor down. This editor's edits still waiting on their
// timer are discarded; call Workspace.Flush first to keep them. Other editors
// on the same note are unaffected.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.w.scheduler.Forget(e.title)
	e.w.scheduler.Forget(e.body)
}

// commitEdit applies a debounced edit. Edits to a note deleted in the
// meantime are dropped.
func (w *Workspace) commitEdit(noteID, field string, params notes.UpdateParams) {
	ctx := obs.WithNoteID(w.bg, noteID)
	w.mu.Lock()
	if !w.notes.Update(noteID, params) {
		w.mu.Unlock()
		obs.From(ctx).Debug("autosave_dropped", "field", field, "reason", "note deleted")
		return
	}
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	w.save(ctx, ticket, snap)
}
