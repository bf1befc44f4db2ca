package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"
)

// PostgresLog appends activity rows to the activity_log table:
//
//	CREATE TABLE activity_log (
//	    id         BIGSERIAL PRIMARY KEY,
//	    actor      TEXT        NOT NULL,
//	    action     TEXT        NOT NULL,
//	    metadata   JSONB,
//	    created_at TIMESTAMPTZ NOT NULL
//	);
type PostgresLog struct {
	db      *sql.DB
	timeout time.Duration
}

func NewPostgresLog(db *sql.DB) *PostgresLog {
	return &PostgresLog{db: db, timeout: 5 * time.Second}
}

// Record inserts asynchronously. Failures are logged, never surfaced.
func (l *PostgresLog) Record(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		var meta []byte
		if ev.Metadata != nil {
			var err error
			if meta, err = json.Marshal(ev.Metadata); err != nil {
				slog.Warn("activity metadata not serializable", "action", ev.Action, "err", err)
				meta = nil
			}
		}

		_, err := l.db.ExecContext(ctx, `
			INSERT INTO activity_log (actor, action, metadata, created_at)
			VALUES ($1, $2, $3, $4)
		`, ev.Actor, ev.Action, nullable(meta), ev.At)
		if err != nil {
			slog.Warn("activity record failed", "actor", ev.Actor, "action", ev.Action, "err", err)
		}
	}()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

// Recent returns the latest activity rows, newest first.
func (l *PostgresLog) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT actor, action, metadata, created_at
		FROM activity_log
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var meta sql.Null[[]byte]
		if err := rows.Scan(&ev.Actor, &ev.Action, &meta, &ev.At); err != nil {
			return nil, err
		}
		if meta.Valid && len(meta.V) > 0 {
			if err := json.Unmarshal(meta.V, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
