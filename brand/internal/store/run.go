package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/hazyhaar/guildbrand/dbopen"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Run is one artifact production attempt for a guild.
type Run struct {
	ID         string `json:"id"`
	GuildID    string `json:"guild_id"`
	Kind       string `json:"kind"`    // "icon", "banner"
	Trigger    string `json:"trigger"` // "daily", "manual", "api", "mcp"
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	Images     int    `json:"images"`
	Bytes      int    `json:"bytes"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt *int64 `json:"finished_at,omitempty"`
}

// InsertRun records the start of a run. ID, Status and StartedAt are filled
// when empty.
func (s *Store) InsertRun(ctx context.Context, r *Run) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	if r.StartedAt == 0 {
		r.StartedAt = time.Now().UnixMilli()
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO runs (id, guild_id, kind, triggered_by, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.GuildID, r.Kind, r.Trigger, r.Status, r.StartedAt)
	return err
}

// FinishRun closes a run with its outcome.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error, images, size int) error {
	status, msg := StatusOK, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	_, err := dbopen.Exec(ctx, s.DB, `
		UPDATE runs SET status = ?, error = ?, images = ?, bytes = ?, finished_at = ?
		WHERE id = ?`,
		status, msg, images, size, time.Now().UnixMilli(), id)
	return err
}

// ListRuns returns the most recent runs of a guild, newest first.
// An empty guildID lists runs across all guilds.
func (s *Store) ListRuns(ctx context.Context, guildID string, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, guild_id, kind, triggered_by, status, error, images, bytes, started_at, finished_at FROM runs`
	args := []any{}
	if guildID != "" {
		q += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	q += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r := &Run{}
		var finished sql.NullInt64
		if err := rows.Scan(&r.ID, &r.GuildID, &r.Kind, &r.Trigger, &r.Status, &r.Error,
			&r.Images, &r.Bytes, &r.StartedAt, &finished); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = &finished.Int64
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CountRuns returns the number of runs per status.
func (s *Store) CountRuns(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
