package workspace

import (
	"context"

	"github.com/kuitang/inkpad/internal/conversation"
)

// threadAccess gives the orchestrator locked, persisting access to threads.
type threadAccess struct {
	w *Workspace
}

func (t threadAccess) Begin(ctx context.Context, noteID string, user, placeholder conversation.Message) ([]conversation.Message, error) {
	w := t.w
	w.mu.Lock()
	if w.closing {
		w.mu.Unlock()
		return nil, closedErr()
	}
	if !w.notes.Exists(noteID) {
		w.mu.Unlock()
		return nil, noteNotFound(noteID)
	}
	history := w.threads.Thread(noteID)
	if err := w.threads.AppendOrReplace(noteID, user); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if err := w.threads.AppendOrReplace(noteID, placeholder); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	w.save(ctx, ticket, snap)
	return history, nil
}

// Settle drops the reply when its note was deleted mid-flight. Otherwise the
// reply lands in the thread it was started in, whatever note is active now.
// Nothing is written once the final snapshot has been taken.
func (t threadAccess) Settle(ctx context.Context, noteID string, reply conversation.Message) (bool, error) {
	w := t.w
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false, closedErr()
	}
	if !w.notes.Exists(noteID) {
		w.mu.Unlock()
		return false, nil
	}
	if err := w.threads.AppendOrReplace(noteID, reply); err != nil {
		w.mu.Unlock()
		return false, err
	}
	snap, ticket := w.snapshotLocked()
	w.mu.Unlock()

	w.save(ctx, ticket, snap)
	return true, nil
}
