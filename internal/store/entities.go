package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

var entityTables = map[string]string{
	EntityPack:        "lottery_packs",
	EntityBin:         "bins",
	EntityUser:        "pos_users",
	EntityGame:        "games",
	EntityBusinessDay: "business_days",
	EntityShift:       "shifts",
}

func entityTable(entityType string) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("entity table %q: %w", entityType, ErrUnknownEntityType)
	}
	return table, nil
}

// GetEntity returns the local copy of a business entity.
func (s *Store) GetEntity(entityType, id string) (*LocalEntity, error) {
	table, err := entityTable(entityType)
	if err != nil {
		return nil, err
	}
	return scanEntity(s.db.Read.QueryRow(
		`SELECT id, store_id, status, version, updated_at, data FROM `+table+` WHERE id = ?`, id))
}

// GetEntityTx is GetEntity inside the caller's transaction, used by the
// reconciler so the compare-and-upsert sees a consistent row.
func (s *Store) GetEntityTx(tx *sql.Tx, entityType, id string) (*LocalEntity, error) {
	table, err := entityTable(entityType)
	if err != nil {
		return nil, err
	}
	return scanEntity(tx.QueryRow(
		`SELECT id, store_id, status, version, updated_at, data FROM `+table+` WHERE id = ?`, id))
}

func scanEntity(row *sql.Row) (*LocalEntity, error) {
	var e LocalEntity
	var updatedAt, data string
	err := row.Scan(&e.ID, &e.StoreID, &e.Status, &e.Version, &updatedAt, &data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	if t, err := parseTime(updatedAt); err == nil {
		e.UpdatedAt = t
	}
	e.Data = json.RawMessage(data)
	return &e, nil
}

// UpsertEntityTx writes a business entity inside the caller's transaction.
func (s *Store) UpsertEntityTx(tx *sql.Tx, entityType string, e *LocalEntity) error {
	table, err := entityTable(entityType)
	if err != nil {
		return err
	}
	data := e.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}
	_, err = tx.Exec(`
		INSERT INTO `+table+` (id, store_id, status, version, updated_at, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			store_id = excluded.store_id,
			status = excluded.status,
			version = excluded.version,
			updated_at = excluded.updated_at,
			data = excluded.data`,
		e.ID, e.StoreID, e.Status, e.Version, formatTime(e.UpdatedAt), string(data))
	if err != nil {
		return fmt.Errorf("upsert %s: %w", entityType, err)
	}
	return nil
}

// UpsertEntity is UpsertEntityTx in its own transaction, for local
// business-mutation handlers.
func (s *Store) UpsertEntity(entityType string, e *LocalEntity) error {
	return s.writer.ExecuteTx(func(tx *sql.Tx) error {
		return s.UpsertEntityTx(tx, entityType, e)
	})
}
