package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const selectItemSQL = `
	SELECT id, store_id, entity_type, entity_id, operation, direction,
	       payload, priority, attempts, max_attempts,
	       last_error, last_error_category, last_attempt_at, retry_after,
	       dead_lettered, synced, synced_at,
	       api_endpoint, http_status, response_body, created_at
	FROM sync_queue`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*QueueItem, error) {
	var item QueueItem
	var payload string
	var lastError, lastCategory, lastAttemptAt, retryAfter sql.NullString
	var syncedAt, apiEndpoint, responseBody, createdAt sql.NullString
	var httpStatus sql.NullInt64
	var deadLettered, synced int

	err := row.Scan(
		&item.ID, &item.StoreID, &item.EntityType, &item.EntityID,
		&item.Operation, &item.Direction,
		&payload, &item.Priority, &item.Attempts, &item.MaxAttempts,
		&lastError, &lastCategory, &lastAttemptAt, &retryAfter,
		&deadLettered, &synced, &syncedAt,
		&apiEndpoint, &httpStatus, &responseBody, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	item.Payload = json.RawMessage(payload)
	item.DeadLettered = deadLettered == 1
	item.Synced = synced == 1
	if lastError.Valid {
		item.LastError = &lastError.String
	}
	if lastCategory.Valid {
		item.LastErrorCategory = &lastCategory.String
	}
	if apiEndpoint.Valid {
		item.APIEndpoint = &apiEndpoint.String
	}
	if responseBody.Valid {
		item.ResponseBody = &responseBody.String
	}
	if httpStatus.Valid {
		v := int(httpStatus.Int64)
		item.HTTPStatus = &v
	}
	for _, pair := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{lastAttemptAt, &item.LastAttemptAt},
		{retryAfter, &item.RetryAfter},
		{syncedAt, &item.SyncedAt},
	} {
		if pair.src.Valid {
			if t, err := parseTime(pair.src.String); err == nil {
				*pair.dst = &t
			}
		}
	}
	if createdAt.Valid {
		if t, err := parseTime(createdAt.String); err == nil {
			item.CreatedAt = t
		}
	}
	return &item, nil
}

// GetItem returns a queue item by ID.
func (s *Store) GetItem(id string) (*QueueItem, error) {
	row := s.db.Read.QueryRow(selectItemSQL+` WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// DuePushItems returns non-terminal PUSH rows eligible at now, ordered by
// priority descending then created_at ascending so lifecycle transitions
// for one entity apply oldest-first within a priority band.
func (s *Store) DuePushItems(limit int, now time.Time) ([]QueueItem, error) {
	rows, err := s.db.Read.Query(selectItemSQL+`
		WHERE direction = ?
		  AND synced = 0 AND dead_lettered = 0
		  AND (retry_after IS NULL OR retry_after <= ?)
		ORDER BY priority DESC, created_at ASC
		LIMIT ?`,
		DirectionPush, formatTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("select due items: %w", err)
	}
	defer rows.Close()

	var items []QueueItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// MarkSynced transitions an item to the synced terminal state. The guard on
// synced/dead_lettered means a concurrent drain that already finished the
// row leaves this a no-op; applied reports whether this caller won.
func (s *Store) MarkSynced(id string, httpStatus int, responseBody, endpoint string, now time.Time) (bool, error) {
	var applied bool
	err := s.writer.ExecuteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE sync_queue
			SET synced = 1, synced_at = ?, last_attempt_at = ?, retry_after = NULL,
			    http_status = ?, response_body = ?, api_endpoint = ?
			WHERE id = ? AND synced = 0 AND dead_lettered = 0`,
			formatTime(now), formatTime(now), httpStatus, responseBody, endpoint, id)
		if err != nil {
			return fmt.Errorf("mark synced: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		applied = n == 1
		return nil
	})
	return applied, err
}

// FailureRecord captures one failed push attempt.
type FailureRecord struct {
	Error        string
	Category     string
	HTTPStatus   int
	ResponseBody string
	Endpoint     string
	AttemptAt    time.Time
	RetryAfter   *time.Time // nil means no further retry is scheduled
}

// MarkRetry records a failed attempt and schedules the next one. The retry
// deadline must be strictly after the attempt timestamp.
func (s *Store) MarkRetry(id string, rec FailureRecord) (bool, error) {
	if rec.RetryAfter == nil || !rec.RetryAfter.After(rec.AttemptAt) {
		return false, fmt.Errorf("retry_after must be after last_attempt_at")
	}
	return s.recordFailure(id, rec, false)
}

// MarkDeadLettered records a failed attempt and permanently excludes the
// row from automatic retry.
func (s *Store) MarkDeadLettered(id string, rec FailureRecord) (bool, error) {
	rec.RetryAfter = nil
	return s.recordFailure(id, rec, true)
}

func (s *Store) recordFailure(id string, rec FailureRecord, dead bool) (bool, error) {
	var retryAfter any
	if rec.RetryAfter != nil {
		retryAfter = formatTime(*rec.RetryAfter)
	}
	var httpStatus any
	if rec.HTTPStatus != 0 {
		httpStatus = rec.HTTPStatus
	}
	deadVal := 0
	if dead {
		deadVal = 1
	}

	var applied bool
	err := s.writer.ExecuteTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE sync_queue
			SET attempts = attempts + 1,
			    last_error = ?, last_error_category = ?, last_attempt_at = ?,
			    retry_after = ?, dead_lettered = ?,
			    http_status = ?, response_body = ?, api_endpoint = ?
			WHERE id = ? AND synced = 0 AND dead_lettered = 0
			  AND attempts < max_attempts`,
			rec.Error, rec.Category, formatTime(rec.AttemptAt),
			retryAfter, deadVal,
			httpStatus, rec.ResponseBody, rec.Endpoint, id)
		if err != nil {
			return fmt.Errorf("record failure: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		applied = n == 1
		return nil
	})
	return applied, err
}

// TrackingPayload is the snapshot stored on a PULL tracking item.
type TrackingPayload struct {
	Records       int        `json:"records"`
	HighWaterMark *time.Time `json:"high_water_mark,omitempty"`
}

// InsertTrackingItemTx writes a PULL tracking row inside the caller's
// transaction, already synced so empty pulls never leave pending rows
// behind. One tracking row per pull cycle, empty pages included.
func (s *Store) InsertTrackingItemTx(tx *sql.Tx, entityType string, payload TrackingPayload, now time.Time) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal tracking payload: %w", err)
	}
	id := NewItemID()
	_, err = tx.Exec(`
		INSERT INTO sync_queue
			(id, store_id, entity_type, entity_id, operation, direction,
			 payload, max_attempts, synced, synced_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, 1, ?, ?)`,
		id, s.storeID, entityType, "pull:"+uuid.NewString(), OpUpdate,
		DirectionPull, string(body), formatTime(now), formatTime(now))
	if err != nil {
		return "", fmt.Errorf("insert tracking item: %w", err)
	}
	return id, nil
}
