package cart

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const snapshotPrefix = "cart-"

// Store persists cart snapshots between sessions, one JSON file per user
// under a well-known key. A missing or unparsable snapshot is treated as an
// empty cart, never as a fatal error.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create cart store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(userID uuid.UUID) string {
	return filepath.Join(s.dir, snapshotPrefix+userID.String()+".json")
}

// Load rehydrates the user's cart. Corrupt data is discarded.
func (s *Store) Load(userID uuid.UUID) Cart {
	data, err := os.ReadFile(s.path(userID))
	if err != nil {
		return Cart{}
	}
	var c Cart
	if err := json.Unmarshal(data, &c); err != nil {
		return Cart{}
	}
	// Recompute rather than trust persisted totals.
	return recompute(c.Lines)
}

func (s *Store) Save(userID uuid.UUID, c Cart) error {
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(userID), data, 0o644)
}

// Clear removes the user's snapshot; no-op when absent.
func (s *Store) Clear(userID uuid.UUID) error {
	err := os.Remove(s.path(userID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
