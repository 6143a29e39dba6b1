package sqlite

import (
	"context"
	"fmt"

	"github.com/zhengwenj/cursor-api-sub001/internal/tokenstate"
)

// SaveTokens rewrites the tokens table in full from recs, matching the
// storage package's doc comment: every save is a whole-state dump rather
// than an incremental diff (the source's rkyv-mmap dump did the same).
func (s *Store) SaveTokens(ctx context.Context, recs []tokenstate.Record) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens`); err != nil {
		return fmt.Errorf("sqlite: clear tokens: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tokens
		(id, raw, alias, proxy_name, session_id, config_version, timezone, enabled,
		 checksum_first, checksum_second, client_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert tokens: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.Raw, r.Alias, r.ProxyName, r.SessionID, r.ConfigVersion, r.Timezone,
			boolToInt(r.Enabled), r.ChecksumFirst, r.ChecksumSecond, r.ClientKey,
		); err != nil {
			return fmt.Errorf("sqlite: insert token %d: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// LoadTokens returns every persisted token record, ordered by id.
func (s *Store) LoadTokens(ctx context.Context) ([]tokenstate.Record, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT
		id, raw, alias, proxy_name, session_id, config_version, timezone, enabled,
		checksum_first, checksum_second, client_key
		FROM tokens ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []tokenstate.Record
	for rows.Next() {
		var r tokenstate.Record
		var enabled int
		if err := rows.Scan(
			&r.ID, &r.Raw, &r.Alias, &r.ProxyName, &r.SessionID, &r.ConfigVersion, &r.Timezone,
			&enabled, &r.ChecksumFirst, &r.ChecksumSecond, &r.ClientKey,
		); err != nil {
			return nil, err
		}
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
