package notes

import (
	"crypto/sha3"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/kuitang/inkpad/internal/errs"
)

// ErrRevisionMismatch is returned when a caller edits a note based on a stale read.
var ErrRevisionMismatch = errors.New("note changed since it was read")

// RevisionHash computes SHA3-256 for title+content.
func RevisionHash(title, content string) string {
	sum := sha3.Sum256([]byte(title + "\x00" + content))
	return hex.EncodeToString(sum[:])
}

// Revision returns the revision hash of a note.
func (n Note) Revision() string {
	return RevisionHash(n.Title, n.Content)
}

// CheckRevision compares a caller-supplied prior hash against the note.
// An empty prior hash skips the check.
func CheckRevision(n Note, prior string) error {
	if strings.TrimSpace(prior) == "" {
		return nil
	}
	h, ok := normalizePriorHash(prior)
	if !ok {
		return errs.New(errs.InvalidArgument, "prior_hash must be 64 hex characters")
	}
	if h != n.Revision() {
		return errs.Wrap(errs.FailedPrecondition, "note was modified; re-read it and retry", ErrRevisionMismatch)
	}
	return nil
}

func normalizePriorHash(hash string) (string, bool) {
	h := strings.TrimSpace(strings.ToLower(hash))
	if len(h) != 64 {
		return "", false
	}
	for _, r := range h {
		isDigit := r >= '0' && r <= '9'
		isHexLetter := r >= 'a' && r <= 'f'
		if !isDigit && !isHexLetter {
			return "", false
		}
	}
	return h, true
}
