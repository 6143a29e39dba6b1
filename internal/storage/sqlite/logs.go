package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	gateway "github.com/zhengwenj/cursor-api-sub001/internal"
)

// SaveLogs rewrites the logs table in full from logs (oldest first).
func (s *Store) SaveLogs(ctx context.Context, logs []gateway.RequestLog) error {
	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM logs`); err != nil {
		return fmt.Errorf("sqlite: clear logs: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO logs
		(id, ts, model, token_key, timing_ms, stream, status, error_msg,
		 prompt_tok, completion_tok, total_tok)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare insert logs: %w", err)
	}
	defer stmt.Close()

	for _, l := range logs {
		var promptTok, completionTok, totalTok sql.NullInt64
		if l.Usage != nil {
			promptTok = sql.NullInt64{Int64: int64(l.Usage.PromptTokens), Valid: true}
			completionTok = sql.NullInt64{Int64: int64(l.Usage.CompletionTokens), Valid: true}
			totalTok = sql.NullInt64{Int64: int64(l.Usage.TotalTokens), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			l.ID, l.Timestamp.UTC().Format(time.RFC3339Nano), l.Model, l.TokenKey,
			l.TimingMS, boolToInt(l.Stream), string(l.Status), l.ErrorMsg,
			promptTok, completionTok, totalTok,
		); err != nil {
			return fmt.Errorf("sqlite: insert log %d: %w", l.ID, err)
		}
	}
	return tx.Commit()
}

// LoadLogs returns every persisted log, oldest first (matching LogManager's
// in-memory ring ordering).
func (s *Store) LoadLogs(ctx context.Context) ([]gateway.RequestLog, error) {
	rows, err := s.read.QueryContext(ctx, `SELECT
		id, ts, model, token_key, timing_ms, stream, status, error_msg,
		prompt_tok, completion_tok, total_tok
		FROM logs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gateway.RequestLog
	for rows.Next() {
		var l gateway.RequestLog
		var ts, status string
		var stream int
		var promptTok, completionTok, totalTok sql.NullInt64
		if err := rows.Scan(
			&l.ID, &ts, &l.Model, &l.TokenKey, &l.TimingMS, &stream, &status, &l.ErrorMsg,
			&promptTok, &completionTok, &totalTok,
		); err != nil {
			return nil, err
		}
		l.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		l.Stream = stream != 0
		l.Status = gateway.LogStatus(status)
		if promptTok.Valid {
			l.Usage = &gateway.Usage{
				PromptTokens:     int(promptTok.Int64),
				CompletionTokens: int(completionTok.Int64),
				TotalTokens:      int(totalTok.Int64),
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
