package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Cursor returns the pull/push watermarks for an entity type. A type that
// has never synced returns a cursor with nil watermarks.
func (s *Store) Cursor(entityType string) (*SyncCursor, error) {
	if !ValidEntityType(entityType) {
		return nil, fmt.Errorf("cursor %q: %w", entityType, ErrUnknownEntityType)
	}
	cursor := &SyncCursor{StoreID: s.storeID, EntityType: entityType}

	var lastPull, lastPush sql.NullString
	err := s.db.Read.QueryRow(`
		SELECT last_pull_at, last_push_at FROM sync_cursors
		WHERE store_id = ? AND entity_type = ?`,
		s.storeID, entityType).Scan(&lastPull, &lastPush)
	if err == sql.ErrNoRows {
		return cursor, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	if lastPull.Valid {
		if t, err := parseTime(lastPull.String); err == nil {
			cursor.LastPullAt = &t
		}
	}
	if lastPush.Valid {
		if t, err := parseTime(lastPush.String); err == nil {
			cursor.LastPushAt = &t
		}
	}
	return cursor, nil
}

// AdvancePullCursorTx moves last_pull_at forward inside the caller's
// transaction. Cursor advance and page completion commit together; a crash
// mid-pull leaves the cursor at the previous watermark and the page is
// re-pulled.
func (s *Store) AdvancePullCursorTx(tx *sql.Tx, entityType string, highWaterMark time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO sync_cursors (store_id, entity_type, last_pull_at)
		VALUES (?, ?, ?)
		ON CONFLICT (store_id, entity_type)
		DO UPDATE SET last_pull_at = excluded.last_pull_at`,
		s.storeID, entityType, formatTime(highWaterMark))
	if err != nil {
		return fmt.Errorf("advance pull cursor: %w", err)
	}
	return nil
}

// TouchPushCursor records the time of the last successful push drain for
// an entity type.
func (s *Store) TouchPushCursor(entityType string, now time.Time) error {
	_, err := s.writer.Execute(`
		INSERT INTO sync_cursors (store_id, entity_type, last_push_at)
		VALUES (?, ?, ?)
		ON CONFLICT (store_id, entity_type)
		DO UPDATE SET last_push_at = excluded.last_push_at`,
		s.storeID, entityType, formatTime(now))
	if err != nil {
		return fmt.Errorf("touch push cursor: %w", err)
	}
	return nil
}
