// Package results stores the outcome of every completed check.
package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/angeloszaimis/uptime-monitor/internal/checker"
)

// timeLayout has a fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Row is one stored check outcome.
type Row struct {
	ID           string
	URL          string
	Status       string
	ResponseTime float64
	CheckedAt    time.Time
	Error        string
}

// SQLiteSink appends results to the url_status table.
type SQLiteSink struct {
	db *sql.DB
}

func NewSQLiteSink(ctx context.Context, path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	sink := &SQLiteSink{db: db}
	if err := sink.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) Close() error { return s.db.Close() }

func (s *SQLiteSink) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS url_status (
	id            TEXT PRIMARY KEY,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	response_time REAL,
	checked_at    TEXT NOT NULL,
	error         TEXT
);
CREATE INDEX IF NOT EXISTS idx_url_status_url_checked_at ON url_status (url, checked_at DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Record stores res. Response time is kept in seconds.
func (s *SQLiteSink) Record(ctx context.Context, res checker.Result) error {
	query := `
INSERT INTO url_status (id, url, status, response_time, checked_at, error)
VALUES (?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(),
		res.URL,
		res.StatusText(),
		res.ResponseTime.Seconds(),
		res.CheckedAt.UTC().Format(timeLayout),
		nullable(res.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result for %s: %w", res.URL, err)
	}
	return nil
}

// History returns the most recent rows for url, newest first.
func (s *SQLiteSink) History(ctx context.Context, url string, limit int) ([]Row, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
SELECT id, url, status, response_time, checked_at, error
FROM url_status
WHERE url = ?
ORDER BY checked_at DESC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, url, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r         Row
			checkedAt string
			errText   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.URL, &r.Status, &r.ResponseTime, &checkedAt, &errText); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		r.CheckedAt, err = time.Parse(timeLayout, checkedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse checked_at: %w", err)
		}
		r.Error = errText.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}
