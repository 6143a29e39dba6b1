package sqlite

import (
	"context"
	"fmt"
)

// SaveConfig rewrites the config_kv table in full from values.
func (s *Store) SaveConfig(ctx context.Context, values map[string]string) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM config_kv`); err != nil {
		return fmt.Errorf("sqlite: clear config: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO config_kv (key, value) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert config: %w", err)
	}
	defer stmt.Close()
	for k, v := range values {
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("sqlite: insert config %q: %w", k, err)
		}
	}
	return tx.Commit()
}

// LoadConfig returns the full admin-overridden key/value map.
func (s *Store) LoadConfig(ctx context.Context) (map[string]string, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT key, value FROM config_kv`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
