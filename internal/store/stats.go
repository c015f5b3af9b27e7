package store

import "fmt"

// Stats returns aggregate queue counts by entity type. This is the only
// queue detail exposed to normal application flow; item-level errors stay
// in diagnostic tooling.
func (s *Store) Stats() (*QueueStats, error) {
	rows, err := s.db.Read.Query(`
		SELECT entity_type,
		       COALESCE(SUM(CASE WHEN synced = 0 AND dead_lettered = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN synced = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN dead_lettered = 1 THEN 1 ELSE 0 END), 0)
		FROM sync_queue
		GROUP BY entity_type
		ORDER BY entity_type`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := &QueueStats{}
	for rows.Next() {
		var es EntityTypeStats
		if err := rows.Scan(&es.EntityType, &es.Pending, &es.Synced, &es.DeadLettered); err != nil {
			return nil, fmt.Errorf("scan stats row: %w", err)
		}
		stats.ByEntityType = append(stats.ByEntityType, es)
		stats.Pending += es.Pending
		stats.Synced += es.Synced
		stats.DeadLettered += es.DeadLettered
	}
	return stats, rows.Err()
}

// PendingCount returns the number of non-terminal rows, optionally scoped
// to one direction.
func (s *Store) PendingCount(direction string) (int, error) {
	query := `SELECT COUNT(*) FROM sync_queue WHERE synced = 0 AND dead_lettered = 0`
	args := []any{}
	if direction != "" {
		query += ` AND direction = ?`
		args = append(args, direction)
	}
	var n int
	if err := s.db.Read.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("pending count: %w", err)
	}
	return n, nil
}
