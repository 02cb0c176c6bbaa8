package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/hazyhaar/guildbrand/dbopen"
)

// Guild is a guild registered by the transport.
type Guild struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Available     bool   `json:"available"`
	LastUpdateDay *int64 `json:"last_update_day,omitempty"`
	CreatedAt     int64  `json:"created_at"`
	UpdatedAt     int64  `json:"updated_at"`
}

// MarkAvailable inserts or revives a guild and stamps it with day, so the
// first automatic update happens on the next day. A guild that is already
// available (a reconnect announcing it again) keeps its stamp.
func (s *Store) MarkAvailable(ctx context.Context, id, name string, day int64) error {
	now := time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, s.DB, `
		INSERT INTO guilds (id, name, available, last_update_day, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE guilds.name END,
			available = 1,
			last_update_day = CASE WHEN guilds.available = 1
				THEN guilds.last_update_day ELSE excluded.last_update_day END,
			updated_at = excluded.updated_at`,
		id, name, day, now, now)
	return err
}

// MarkUnavailable flags a guild as gone. Its history is kept.
func (s *Store) MarkUnavailable(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`UPDATE guilds SET available = 0, updated_at = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	return err
}

// ClaimDay stamps an available guild with day unless it already carries it.
// It reports whether this call made the change, so concurrent checks
// dispatch a guild at most once per day.
func (s *Store) ClaimDay(ctx context.Context, id string, day int64) (bool, error) {
	res, err := dbopen.Exec(ctx, s.DB, `
		UPDATE guilds SET last_update_day = ?, updated_at = ?
		WHERE id = ? AND available = 1
		  AND (last_update_day IS NULL OR last_update_day != ?)`,
		day, time.Now().UnixMilli(), id, day)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetGuild returns a guild by ID, or nil if unknown.
func (s *Store) GetGuild(ctx context.Context, id string) (*Guild, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, available, last_update_day, created_at, updated_at
		FROM guilds WHERE id = ?`, id)
	g, err := scanGuild(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ListGuilds lists guilds ordered by ID.
func (s *Store) ListGuilds(ctx context.Context, availableOnly bool) ([]*Guild, error) {
	q := `SELECT id, name, available, last_update_day, created_at, updated_at FROM guilds`
	if availableOnly {
		q += ` WHERE available = 1`
	}
	q += ` ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Guild
	for rows.Next() {
		g, err := scanGuild(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGuild(sc scanner) (*Guild, error) {
	g := &Guild{}
	var available int
	var day sql.NullInt64
	if err := sc.Scan(&g.ID, &g.Name, &available, &day, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return nil, err
	}
	g.Available = available != 0
	if day.Valid {
		g.LastUpdateDay = &day.Int64
	}
	return g, nil
}
