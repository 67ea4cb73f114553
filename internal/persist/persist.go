package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/kuitang/inkpad/internal/conversation"
	"github.com/kuitang/inkpad/internal/errs"
	"github.com/kuitang/inkpad/internal/notes"
	"github.com/kuitang/inkpad/internal/obs"
)

// SnapshotVersion is written into every snapshot.
const SnapshotVersion = 1

// Snapshot is the persisted subset of workspace state. The active selection
// is not stored: a restart always begins with nothing selected.
type Snapshot struct {
	Version  int                               `json:"version"`
	Notes    []notes.Note                      `json:"notes"`
	Messages map[string][]conversation.Message `json:"messages"`
}

// Persister encodes snapshots into a Slot.
type Persister struct {
	slot Slot

	mu        sync.Mutex
	seq       uint64
	committed uint64
}

// New creates a Persister over slot.
func New(slot Slot) *Persister {
	return &Persister{slot: slot}
}

// Load reads the stored snapshot. An empty slot yields an empty snapshot.
func (p *Persister) Load(ctx context.Context) (Snapshot, error) {
	data, err := p.slot.Load(ctx)
	if errors.Is(err, ErrSlotEmpty) {
		return emptySnapshot(), nil
	}
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.Unavailable, "load snapshot", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errs.Wrap(errs.Internal, "decode snapshot", err)
	}
	if snap.Version > SnapshotVersion {
		return Snapshot{}, errs.New(errs.FailedPrecondition,
			fmt.Sprintf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion))
	}
	if snap.Messages == nil {
		snap.Messages = map[string][]conversation.Message{}
	}
	obs.From(ctx).Debug("snapshot_loaded", "notes", len(snap.Notes), "threads", len(snap.Messages), "bytes", len(data))
	return snap, nil
}

// Ticket reserves a sequence number. Callers take a ticket while they still
// hold the state lock so tickets follow mutation order, then Save outside it.
func (p *Persister) Ticket() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return p.seq
}

// Save writes snap. Saves are serialized; a save whose ticket is older than
// the last committed one is skipped, so the slot never moves backwards.
func (p *Persister) Save(ctx context.Context, snap Snapshot) error {
	return p.SaveTicket(ctx, p.Ticket(), snap)
}

// SaveTicket is Save with a ticket obtained earlier from Ticket.
func (p *Persister) SaveTicket(ctx context.Context, ticket uint64, snap Snapshot) error {
	snap.Version = SnapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return errs.Wrap(errs.Internal, "encode snapshot", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if ticket <= p.committed {
		obs.From(ctx).Debug("snapshot_save_skipped", "ticket", ticket, "committed", p.committed)
		return nil
	}
	if err := p.slot.Save(ctx, data); err != nil {
		return errs.Wrap(errs.Unavailable, "save snapshot", err)
	}
	p.committed = ticket
	return nil
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Version:  SnapshotVersion,
		Notes:    []notes.Note{},
		Messages: map[string][]conversation.Message{},
	}
}
