package store

import "fmt"

// ListDeadLettered returns dead-lettered rows, newest first, optionally
// filtered by entity type. Dead rows are kept for operator inspection and
// are only ever retried through an explicit requeue, which creates a new
// row; the dead row itself is immutable.
func (s *Store) ListDeadLettered(entityType string) ([]QueueItem, error) {
	query := selectItemSQL + ` WHERE dead_lettered = 1`
	args := []any{}
	if entityType != "" {
		if !ValidEntityType(entityType) {
			return nil, fmt.Errorf("list dead-lettered %q: %w", entityType, ErrUnknownEntityType)
		}
		query += ` AND entity_type = ?`
		args = append(args, entityType)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.Read.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead-lettered: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead-lettered item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
