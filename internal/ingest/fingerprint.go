package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Fingerprint identifies a raw upload by content: lowercase hex SHA-256 of
// its exact bytes.
type Fingerprint string

// Compute fingerprints raw. Identical bytes always give the same value,
// whatever the file name or upload time.
func Compute(raw []byte) Fingerprint {
	sum := sha256.Sum256(raw)
	return Fingerprint(hex.EncodeToString(sum[:]))
}

func (f Fingerprint) String() string { return string(f) }

// FingerprintStore answers whether a fingerprint has been committed.
type FingerprintStore interface {
	HasFingerprint(ctx context.Context, fingerprint string) (bool, error)
}

// Guard is the fast-path duplicate check run before parsing. It only reads;
// the fingerprint is recorded by the store in the same transaction as the
// batch rows, and the store's uniqueness constraint is authoritative.
type Guard struct {
	store FingerprintStore
}

func NewGuard(store FingerprintStore) *Guard {
	return &Guard{store: store}
}

func (g *Guard) IsSeen(ctx context.Context, fp Fingerprint) (bool, error) {
	seen, err := g.store.HasFingerprint(ctx, fp.String())
	if err != nil {
		return false, fmt.Errorf("check fingerprint: %w", err)
	}
	return seen, nil
}
