// Package workspace owns the notes, their conversation threads, and the
// storage behind them. A Workspace is opened once, passed to whichever
// surface needs it, and closed with a final flush.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kuitang/inkpad/internal/assistant"
	"github.com/kuitang/inkpad/internal/autosave"
	"github.com/kuitang/inkpad/internal/conversation"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/kuitang/inkpad/internal/obs"
	"github.com/kuitang/inkpad/internal/persist"
)

// ErrClosed is returned by operations on a closed Workspace.
var ErrClosed = errors.New("workspace closed")

// Options configures Open.
type Options struct {
	// Slot is where the snapshot lives. Required.
	Slot persist.Slot
	// Generator produces assistant replies. Required.
	Generator assistant.Generator
	// Assistant tunes context window, rate limit, and timeout.
	Assistant assistant.Config
	// AutosaveDelay is the editor debounce window. Zero uses autosave.DefaultDelay.
	AutosaveDelay time.Duration
	// Clock drives editor timers. Nil uses the real clock.
	Clock autosave.Clock
	// NoteOptions are passed to notes.NewStore.
	NoteOptions []notes.Option
	// OnPersistError is called after a failed save. The in-memory change is kept.
	OnPersistError func(error)
}

// Workspace is the application state: notes, active selection, threads.
// All store access is serialized by one mutex; saves run outside it.
type Workspace struct {
	mu      sync.Mutex
	notes   *notes.Store
	threads *conversation.Store
	// closing is set when Close starts; new chat turns are refused from then
	// on. closed is set once pending work is drained.
	closing bool
	closed  bool

	editorSeq uint64

	persister *persist.Persister
	scheduler *autosave.Scheduler
	assistant *assistant.Orchestrator

	// bg carries correlation values into timer and async goroutines.
	bg context.Context

	errMu          sync.Mutex
	lastPersistErr error
	onPersistError func(error)
}

// Open builds the stores and rehydrates them from the slot.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	if opts.Slot == nil {
		return nil, errs.New(errs.InvalidArgument, "workspace: slot is required")
	}
	if opts.Generator == nil {
		return nil, errs.New(errs.InvalidArgument, "workspace: generator is required")
	}

	persister := persist.New(opts.Slot)
	snap, err := persister.Load(ctx)
	if err != nil {
		return nil, err
	}

	w := &Workspace{
		notes:          notes.NewStore(opts.NoteOptions...),
		threads:        conversation.NewStore(),
		persister:      persister,
		bg:             context.WithoutCancel(ctx),
		onPersistError: opts.OnPersistError,
	}
	w.notes.Restore(snap.Notes)
	threads, abandoned := liveThreads(snap, w.notes)
	w.threads.Restore(threads)
	if abandoned > 0 {
		obs.From(ctx).Warn("abandoned_turns_failed", "count", abandoned)
	}

	schedOpts := []autosave.Option{autosave.WithDelay(opts.AutosaveDelay)}
	if opts.Clock != nil {
		schedOpts = append(schedOpts, autosave.WithClock(opts.Clock))
	}
	w.scheduler = autosave.NewScheduler(schedOpts...)
	w.assistant = assistant.New(threadAccess{w}, opts.Generator, opts.Assistant)

	obs.From(ctx).Info("workspace_opened", "notes", w.notes.Len(), "threads", len(snap.Messages))
	return w, nil
}

// liveThreads drops persisted threads whose note no longer exists. A
// placeholder still pending in storage belongs to a turn that can never
// settle, so it is failed in place; the count of those is returned.
func liveThreads(snap persist.Snapshot, store *notes.Store) (map[string][]conversation.Message, int) {
	out := make(map[string][]conversation.Message, len(snap.Messages))
	abandoned := 0
	for id, thread := range snap.Messages {
		if !store.Exists(id) {
			continue
		}
		kept := make([]conversation.Message, len(thread))
		for i, m := range thread {
			if m.IsLoading() {
				m = m.Fail()
				abandoned++
			}
			kept[i] = m
		}
		out[id] = kept
	}
	return out, abandoned
}

// CreateNote adds an empty note. The selection is left alone.
func (w *Workspace) CreateNote(ctx context.Context) (notes.Note, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return notes.Note{}, closedErr()
	}
	id := w.notes.Create()
	note, _ := w.notes.Get(id)
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	obs.From(obs.WithNoteID(ctx, id)).Info("note_created")
	w.save(ctx, ticket, snap)
	return note, nil
}

// UpdateNote merges params into a note.
func (w *Workspace) UpdateNote(ctx context.Context, id string, params notes.UpdateParams) (notes.Note, error) {
	return w.updateNote(ctx, id, params, "")
}

// UpdateNoteIfUnchanged is UpdateNote guarded by a revision hash taken from an
// earlier read. An empty priorHash skips the check.
func (w *Workspace) UpdateNoteIfUnchanged(ctx context.Context, id string, params notes.UpdateParams, priorHash string) (notes.Note, error) {
	return w.updateNote(ctx, id, params, priorHash)
}

func (w *Workspace) updateNote(ctx context.Context, id string, params notes.UpdateParams, priorHash string) (notes.Note, error) {
	if params.IsEmpty() {
		return notes.Note{}, errs.New(errs.InvalidArgument, "nothing to update: supply a title or content")
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return notes.Note{}, closedErr()
	}
	current, ok := w.notes.Get(id)
	if !ok {
		w.mu.Unlock()
		return notes.Note{}, noteNotFound(id)
	}
	if err := notes.CheckRevision(current, priorHash); err != nil {
		w.mu.Unlock()
		return notes.Note{}, err
	}
	w.notes.Update(id, params)
	note, _ := w.notes.Get(id)
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	obs.From(obs.WithNoteID(ctx, id)).Debug("note_updated")
	w.save(ctx, ticket, snap)
	return note, nil
}

// DeleteNote removes a note, its thread, and any pending editor commits.
// When the note was active, the first remaining note becomes active.
func (w *Workspace) DeleteNote(ctx context.Context, id string) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return closedErr()
	}
	if !w.notes.Delete(id) {
		w.mu.Unlock()
		return noteNotFound(id)
	}
	w.threads.Drop(id)
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	w.scheduler.CancelScope(id)
	obs.From(obs.WithNoteID(ctx, id)).Info("note_deleted")
	w.save(ctx, ticket, snap)
	return nil
}

// SelectNote makes id the active note.
func (w *Workspace) SelectNote(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notes.SetActive(id)
}

// ClearSelection deselects the active note.
func (w *Workspace) ClearSelection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.notes.ClearActive()
}

// ActiveNote returns the selected note.
func (w *Workspace) ActiveNote() (notes.Note, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notes.Active()
}

// Note returns a note by id.
func (w *Workspace) Note(id string) (notes.Note, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notes.Get(id)
}

// ListNotes filters by title and orders most recently modified first.
func (w *Workspace) ListNotes(search string) []notes.Note {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.notes.List(search)
}

// Thread returns the conversation attached to a note.
func (w *Workspace) Thread(noteID string) []conversation.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.threads.Thread(noteID)
}

// Send runs a chat turn on a note and waits for the reply.
func (w *Workspace) Send(ctx context.Context, noteID, text string) (assistant.Turn, error) {
	return w.assistant.Send(obs.WithNoteID(ctx, noteID), noteID, text)
}

// SendAsync records a chat turn and resolves it in the background.
func (w *Workspace) SendAsync(ctx context.Context, noteID, text string) (assistant.Turn, <-chan assistant.Turn, error) {
	return w.assistant.SendAsync(obs.WithNoteID(ctx, noteID), noteID, text)
}

// LastPersistError returns the most recent save failure, or nil once a
// later save succeeds.
func (w *Workspace) LastPersistError() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.lastPersistErr
}

// Flush runs pending editor commits now and waits for in-flight turns.
func (w *Workspace) Flush(ctx context.Context) error {
	w.assistant.Wait()
	w.scheduler.Flush()
	return w.LastPersistError()
}

// Close stops accepting chat turns, waits for in-flight ones, flushes pending
// edits, and writes a final snapshot. The Workspace rejects mutations
// afterwards.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil
	}
	w.closing = true
	w.mu.Unlock()

	w.assistant.Close()
	flushed := w.scheduler.Flush()
	w.scheduler.Close()

	w.mu.Lock()
	w.closed = true
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	if err := w.persister.SaveTicket(ctx, ticket, snap); err != nil {
		w.recordPersistError(ctx, err)
		return fmt.Errorf("final save: %w", err)
	}
	obs.From(ctx).Info("workspace_closed", "flushed_edits", flushed, "notes", len(snap.Notes))
	return nil
}

// snapshotLocked captures persisted state and reserves a save ticket.
// Caller holds w.mu.
func (w *Workspace) snapshotLocked() (persist.Snapshot, uint64) {
	return persist.Snapshot{
		Notes:    w.notes.All(),
		Messages: w.threads.All(),
	}, w.persister.Ticket()
}

// save writes a snapshot. Failures are recorded and reported but never
// roll back the in-memory change.
func (w *Workspace) save(ctx context.Context, ticket uint64, snap persist.Snapshot) {
	err := w.persister.SaveTicket(context.WithoutCancel(ctx), ticket, snap)
	if err != nil {
		w.recordPersistError(ctx, err)
		return
	}
	w.errMu.Lock()
	w.lastPersistErr = nil
	w.errMu.Unlock()
}

func (w *Workspace) recordPersistError(ctx context.Context, err error) {
	obs.From(ctx).Error("snapshot_save_failed", "error", err.Error())
	w.errMu.Lock()
	w.lastPersistErr = err
	hook := w.onPersistError
	w.errMu.Unlock()
	if hook != nil {
		hook(err)
	}
}

func noteNotFound(id string) error {
	return errs.Wrap(errs.NotFound, fmt.Sprintf("note not found: %s", id), notes.ErrUnknownNote)
}

func closedErr() error {
	return errs.Wrap(errs.FailedPrecondition, "workspace is closed", ErrClosed)
}
