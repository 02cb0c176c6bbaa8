package store

// Schema contains the DDL for the guild registry and the run log.
const Schema = `
-- Guilds known to the transport. last_update_day is unix_ms / 86400000.
CREATE TABLE IF NOT EXISTS guilds (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL DEFAULT '',
    available       INTEGER NOT NULL DEFAULT 1,
    last_update_day INTEGER,
    created_at      INTEGER NOT NULL,
    updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_guilds_available ON guilds(available);

-- One row per artifact production attempt.
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    guild_id     TEXT NOT NULL,
    kind         TEXT NOT NULL,
    triggered_by TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'running',
    error        TEXT NOT NULL DEFAULT '',
    images       INTEGER NOT NULL DEFAULT 0,
    bytes        INTEGER NOT NULL DEFAULT 0,
    started_at   INTEGER NOT NULL,
    finished_at  INTEGER
);
CREATE INDEX IF NOT EXISTS idx_runs_guild ON runs(guild_id, started_at DESC);
`
