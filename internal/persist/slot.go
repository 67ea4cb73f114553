// Package persist saves and restores the workspace snapshot.
package persist

import (
	"context"
	"errors"
	"sync"
)

// SlotName is the fixed key the snapshot is stored under.
const SlotName = "notes-storage"

// ErrSlotEmpty is returned by Slot.Load when nothing has been saved yet.
var ErrSlotEmpty = errors.New("persist: slot is empty")

// Slot is a single named blob in durable storage.
type Slot interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// MemorySlot keeps the blob in process memory.
type MemorySlot struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

// NewMemorySlot creates an empty MemorySlot.
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{}
}

func (m *MemorySlot) Load(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, ErrSlotEmpty
	}
	return append([]byte(nil), m.data...), nil
}

func (m *MemorySlot) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append([]byte(nil), data...)
	m.saves++
	return nil
}

// Saves returns how many times Save succeeded.
func (m *MemorySlot) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
