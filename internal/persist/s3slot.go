package persist

import (
	"context"
	"crypto/sha3"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/kuitang/inkpad/internal/crypto"
	"github.com/kuitang/inkpad/internal/s3client"
)

// S3Slot stores the snapshot as a single sealed object. Object storage does
// not encrypt with our key, so the blob is sealed with AES-GCM before upload.
type S3Slot struct {
	client *s3client.Client
	key    []byte
	name   string
}

// NewS3Slot creates a slot storing object name, sealed with sealKey
// (crypto.KeySize bytes).
func NewS3Slot(client *s3client.Client, name string, sealKey []byte) (*S3Slot, error) {
	if len(sealKey) != crypto.KeySize {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", crypto.KeySize, len(sealKey))
	}
	if name == "" {
		name = SlotName
	}
	return &S3Slot{client: client, key: sealKey, name: name}, nil
}

func (s *S3Slot) Load(ctx context.Context) ([]byte, error) {
	sealed, err := s.client.GetObject(ctx, s.name)
	if errors.Is(err, s3client.ErrObjectNotFound) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, err
	}
	data, err := crypto.Open(s.key, sealed, []byte(s.name))
	if err != nil {
		return nil, fmt.Errorf("open snapshot %q: %w", s.name, err)
	}
	return data, nil
}

func (s *S3Slot) Save(ctx context.Context, data []byte) error {
	sealed, err := crypto.Seal(s.key, data, []byte(s.name))
	if err != nil {
		return fmt.Errorf("seal snapshot %q: %w", s.name, err)
	}
	sum := sha3.Sum256(data)
	return s.client.PutObject(ctx, s.name, sealed, "application/octet-stream", map[string]string{
		"digest": hex.EncodeToString(sum[:]),
	})
}
