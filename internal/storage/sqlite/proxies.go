package sqlite

import (
	"context"
	"fmt"

	"github.com/zhengwenj/cursor-api-sub001/internal/proxypool"
	"github.com/zhengwenj/cursor-api-sub001/internal/storage"
)

// SaveProxies rewrites the proxies table and the single general-proxy row
// in full from declared/general.
func (s *Store) SaveProxies(ctx context.Context, declared []storage.ProxyRecord, general string) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM proxies`); err != nil {
		return fmt.Errorf("sqlite: clear proxies: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO proxies (name, kind, url) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert proxies: %w", err)
	}
	defer stmt.Close()
	for _, p := range declared {
		if _, err := stmt.ExecContext(ctx, p.Name, int(p.Kind), p.URL); err != nil {
			return fmt.Errorf("sqlite: insert proxy %q: %w", p.Name, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO proxy_general (id, name) VALUES (1, ?)
		 ON CONFLICT (id) DO UPDATE SET name = excluded.name`, general,
	); err != nil {
		return fmt.Errorf("sqlite: set general proxy: %w", err)
	}
	return tx.Commit()
}

// LoadProxies returns the declared proxy set and the name of the general
// proxy. An empty general means none was ever saved (the caller falls
// back to proxypool.New's default).
func (s *Store) LoadProxies(ctx context.Context) ([]storage.ProxyRecord, string, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT name, kind, url FROM proxies`)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var out []storage.ProxyRecord
	for rows.Next() {
		var p storage.ProxyRecord
		var kind int
		if err := rows.Scan(&p.Name, &kind, &p.URL); err != nil {
			return nil, "", err
		}
		p.Kind = proxypool.Kind(kind)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var general string
	err = s.read.QueryRowContext(ctx, `SELECT name FROM proxy_general WHERE id = 1`).Scan(&general)
	if err != nil {
		general = ""
	}
	return out, general, nil
}
