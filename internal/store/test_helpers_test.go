package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/famshelf/internal/inventory"
)

// createTestStore creates a new on-disk store in a temp dir for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestItem creates an item with minimal required fields.
func createTestItem(id, groupID, name, potency string, quantity int) inventory.Item {
	return inventory.Item{
		ID:        id,
		GroupID:   groupID,
		Name:      name,
		Potency:   potency,
		Company:   "Boiron",
		Location:  "Kitchen",
		Quantity:  quantity,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC),
	}
}

func insertTestItem(t *testing.T, s *Store, item inventory.Item) inventory.Item {
	t.Helper()
	stored, err := s.InsertItem(context.Background(), item)
	if err != nil {
		t.Fatalf("InsertItem(%s) failed: %v", item.ID, err)
	}
	return stored
}
