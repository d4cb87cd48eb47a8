package store

import (
	"context"
	"fmt"
	"time"
)

// ReserveGroupCode records code as issued. Returns false if it was issued
// before; codes are never handed out twice.
func (s *Store) ReserveGroupCode(ctx context.Context, code string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO group_codes (code, issued_at)
		VALUES (?, ?)
		ON CONFLICT(code) DO NOTHING
	`, code, time.Now().UTC().Format(timeLayout))
	if err != nil {
		return false, fmt.Errorf("reserve group code: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve group code: rows affected: %w", err)
	}
	return n == 1, nil
}

// GroupKnown reports whether code was issued here or tags at least one item.
// Items imported from elsewhere make their code known without an issue record.
func (s *Store) GroupKnown(ctx context.Context, code string) (bool, error) {
	var known bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM group_codes WHERE code = ?)
		    OR EXISTS (SELECT 1 FROM items WHERE group_id = ?)
	`, code, code).Scan(&known)
	if err != nil {
		return false, fmt.Errorf("group known: %w", err)
	}
	return known, nil
}
