// Copyright 2025 ShelfLife Authors
// SPDX-License-Identifier: Apache-2.0

package localstore

import (
	"fmt"

	"github.com/raiderj77/shelflife/catalog"
)

// Tombstones returns the deletion queue in the order deletions happened.
func (s *Store) Tombstones() ([]catalog.Tombstone, error) {
	rows, err := s.db.Query(`
		SELECT id, table_name, bgg_id, remote_id, deleted_at
		FROM deletion_tombstones ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tombstones: %w", err)
	}
	defer rows.Close()

	var out []catalog.Tombstone
	for rows.Next() {
		var t catalog.Tombstone
		var table, deletedAt string
		if err := rows.Scan(&t.ID, &table, &t.BGGID, &t.RemoteID, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		t.Table = catalog.TombstoneTable(table)
		if t.DeletedAt, err = parseTime(deletedAt); err != nil {
			return nil, fmt.Errorf("failed to parse deleted_at: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTombstone removes a tombstone once its deletion has been propagated
// (or determined unnecessary).
func (s *Store) DeleteTombstone(id int64) error {
	if _, err := s.db.Exec(`DELETE FROM deletion_tombstones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tombstone %d: %w", id, err)
	}
	return nil
}
