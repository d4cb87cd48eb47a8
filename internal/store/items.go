package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/famshelf/internal/inventory"
)

// timeLayout is how created_at is persisted: UTC, sortable, nanosecond precision.
const timeLayout = time.RFC3339Nano

const itemColumns = `id, group_id, name, potency, company, location, sub_location, bottle_size, quantity, created_at`

// InsertItem writes a new row. The caller assigns ID, GroupID and CreatedAt.
// Returns the row as stored.
func (s *Store) InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	item.CreatedAt = item.CreatedAt.UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.GroupID,
		item.Name,
		item.Potency,
		item.Company,
		item.Location,
		nullString(item.SubLocation),
		nullString(item.BottleSize),
		item.Quantity,
		item.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return item, nil
}

// GetItem returns the item with id in groupID.
// Returns inventory.ErrNotFound if no such row exists in that group.
func (s *Store) GetItem(ctx context.Context, groupID, id string) (inventory.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE id = ? AND group_id = ?
	`, id, groupID)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Item{}, inventory.ErrNotFound
	}
	if err != nil {
		return inventory.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// ListItems returns every item in groupID ordered by name, then id.
// Returns an empty slice (not nil) for a group with no items.
func (s *Store) ListItems(ctx context.Context, groupID string) ([]inventory.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE group_id = ?
		ORDER BY name COLLATE NOCASE ASC, id COLLATE BINARY ASC
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := []inventory.Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// UpdateItem overwrites the mutable fields of the row matching
// (item.ID, item.GroupID). group_id and created_at are never written.
// Returns inventory.ErrNotFound if no row matched.
func (s *Store) UpdateItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = ?, potency = ?, company = ?, location = ?,
		    sub_location = ?, bottle_size = ?, quantity = ?
		WHERE id = ? AND group_id = ?
	`,
		item.Name,
		item.Potency,
		item.Company,
		item.Location,
		nullString(item.SubLocation),
		nullString(item.BottleSize),
		item.Quantity,
		item.ID,
		item.GroupID,
	)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("update item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return inventory.Item{}, fmt.Errorf("update item: rows affected: %w", err)
	}
	if n == 0 {
		return inventory.Item{}, inventory.ErrNotFound
	}
	return s.GetItem(ctx, item.GroupID, item.ID)
}

// DeleteItem removes the row matching (id, groupID).
// Returns inventory.ErrNotFound if nothing was removed.
func (s *Store) DeleteItem(ctx context.Context, groupID, id string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM items WHERE id = ? AND group_id = ?
	`, id, groupID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item: rows affected: %w", err)
	}
	if n == 0 {
		return inventory.ErrNotFound
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (inventory.Item, error) {
	var (
		item        inventory.Item
		subLocation sql.NullString
		bottleSize  sql.NullString
		createdAt   string
	)
	err := r.Scan(
		&item.ID,
		&item.GroupID,
		&item.Name,
		&item.Potency,
		&item.Company,
		&item.Location,
		&subLocation,
		&bottleSize,
		&item.Quantity,
		&createdAt,
	)
	if err != nil {
		return inventory.Item{}, err
	}
	item.SubLocation = subLocation.String
	item.BottleSize = bottleSize.String
	item.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return inventory.Item{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return item, nil
}

// nullString stores absent optional fields as NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
