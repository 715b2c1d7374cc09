// Package store implements the single-file embedded relational
// persistence layer.
// Driver is modernc.org/sqlite (pure Go, no CGO), opened through
// database/sql. Grounded in durability mindset on an atomic-write,
// versioned-migration persistence discipline, backed by SQLite instead
// of a JSON file.
package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/studiocommand/engine/internal/model"
)

const ddl = `
CREATE TABLE IF NOT EXISTS queue_items (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL,
	tag TEXT NOT NULL DEFAULT '',
	time TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL DEFAULT '',
	artist TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT '',
	dur TEXT NOT NULL DEFAULT '',
	cart TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_queue_items_position ON queue_items(position);

CREATE TABLE IF NOT EXISTS stream_output_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	type TEXT NOT NULL DEFAULT 'icecast',
	host TEXT NOT NULL DEFAULT '',
	port INTEGER NOT NULL DEFAULT 0,
	mount TEXT NOT NULL DEFAULT '',
	username TEXT NOT NULL DEFAULT '',
	password TEXT NOT NULL DEFAULT '',
	codec TEXT NOT NULL DEFAULT 'mp3',
	bitrate INTEGER NOT NULL DEFAULT 128,
	enabled INTEGER NOT NULL DEFAULT 0,
	meta_name TEXT NOT NULL DEFAULT '',
	meta_genre TEXT NOT NULL DEFAULT '',
	meta_description TEXT NOT NULL DEFAULT '',
	meta_public INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS top_up_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	enabled INTEGER NOT NULL DEFAULT 0,
	dir TEXT NOT NULL DEFAULT '',
	min_queue INTEGER NOT NULL DEFAULT 0,
	batch INTEGER NOT NULL DEFAULT 0
);
`

var legacyPlaceholderTitle = regexp.MustCompile(`^Queued Track \d+$`)

// Store wraps a single-connection *sql.DB. The connection pool is capped
// at one because the engine treats the store as synchronous: capping it
// sidesteps SQLite's single-writer limitation instead of layering an
// application mutex in front of it.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path, sets WAL
// journaling and normal synchronous mode, and applies idempotent DDL.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set synchronous mode: %w", err)
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadQueue streams rows ordered by position, normalizing away legacy
// placeholder rows. Marker normalization itself is the queue package's
// job; this only strips rows that should never have survived.
func (s *Store) LoadQueue() ([]*model.LogItem, error) {
	rows, err := s.db.Query(`SELECT id, tag, time, title, artist, state, dur, cart FROM queue_items ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("load queue: %w", err)
	}
	defer rows.Close()

	var items []*model.LogItem
	for rows.Next() {
		var it model.LogItem
		var state string
		if err := rows.Scan(&it.ID, &it.Tag, &it.Time, &it.Title, &it.Artist, &state, &it.Dur, &it.Cart); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		it.State = model.Marker(state)
		if isLegacyPlaceholder(&it) {
			continue
		}
		items = append(items, &it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue rows: %w", err)
	}
	return items, nil
}

func isLegacyPlaceholder(it *model.LogItem) bool {
	if legacyPlaceholderTitle.MatchString(it.Title) {
		return true
	}
	if it.Artist == "Various" {
		return true
	}
	if strings.TrimSpace(it.Cart) == "" {
		return true
	}
	return false
}

// SaveQueue rewrites the entire queue table in one transaction, in
// order: trades cost for simplicity and guarantees no partial-reorder
// states after a crash.
func (s *Store) SaveQueue(items []*model.LogItem) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin save queue tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM queue_items`); err != nil {
		return fmt.Errorf("clear queue table: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO queue_items (id, position, tag, time, title, artist, state, dur, cart) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare queue insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range items {
		if _, err := stmt.Exec(it.ID, i, it.Tag, it.Time, it.Title, it.Artist, string(it.State), it.Dur, it.Cart); err != nil {
			return fmt.Errorf("insert queue row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// LoadOutputConfig returns the singleton output config, or the zero
// value if no row exists yet.
func (s *Store) LoadOutputConfig() (model.StreamOutputConfig, error) {
	var cfg model.StreamOutputConfig
	var enabled, metaPublic int
	row := s.db.QueryRow(`SELECT type, host, port, mount, username, password, codec, bitrate, enabled, meta_name, meta_genre, meta_description, meta_public FROM stream_output_config WHERE id = 1`)
	err := row.Scan(&cfg.Type, &cfg.Host, &cfg.Port, &cfg.Mount, &cfg.Username, &cfg.Password, &cfg.Codec, &cfg.Bitrate, &enabled, &cfg.MetaName, &cfg.MetaGenre, &cfg.MetaDescription, &metaPublic)
	if err == sql.ErrNoRows {
		return model.StreamOutputConfig{Type: "icecast", Codec: "mp3", Bitrate: 128}, nil
	}
	if err != nil {
		return model.StreamOutputConfig{}, fmt.Errorf("load output config: %w", err)
	}
	cfg.Enabled = enabled != 0
	cfg.MetaPublic = metaPublic != 0
	return cfg, nil
}

// SaveOutputConfig upserts the singleton output config row.
func (s *Store) SaveOutputConfig(cfg model.StreamOutputConfig) error {
	_, err := s.db.Exec(`
		INSERT INTO stream_output_config (id, type, host, port, mount, username, password, codec, bitrate, enabled, meta_name, meta_genre, meta_description, meta_public)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type=excluded.type, host=excluded.host, port=excluded.port, mount=excluded.mount,
			username=excluded.username, password=excluded.password, codec=excluded.codec,
			bitrate=excluded.bitrate, enabled=excluded.enabled, meta_name=excluded.meta_name,
			meta_genre=excluded.meta_genre, meta_description=excluded.meta_description, meta_public=excluded.meta_public
	`, cfg.Type, cfg.Host, cfg.Port, cfg.Mount, cfg.Username, cfg.Password, cfg.Codec, cfg.Bitrate, boolToInt(cfg.Enabled), cfg.MetaName, cfg.MetaGenre, cfg.MetaDescription, boolToInt(cfg.MetaPublic))
	if err != nil {
		return fmt.Errorf("save output config: %w", err)
	}
	return nil
}

// LoadTopUpConfig returns the singleton top-up config, or the zero value
// (which IsUninitialized reports as true) if no row exists yet.
func (s *Store) LoadTopUpConfig() (model.TopUpConfig, error) {
	var cfg model.TopUpConfig
	var enabled int
	row := s.db.QueryRow(`SELECT enabled, dir, min_queue, batch FROM top_up_config WHERE id = 1`)
	err := row.Scan(&enabled, &cfg.Dir, &cfg.MinQueue, &cfg.Batch)
	if err == sql.ErrNoRows {
		return model.TopUpConfig{}, nil
	}
	if err != nil {
		return model.TopUpConfig{}, fmt.Errorf("load topup config: %w", err)
	}
	cfg.Enabled = enabled != 0
	return cfg, nil
}

// SaveTopUpConfig upserts the singleton top-up config row.
func (s *Store) SaveTopUpConfig(cfg model.TopUpConfig) error {
	_, err := s.db.Exec(`
		INSERT INTO top_up_config (id, enabled, dir, min_queue, batch)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled=excluded.enabled, dir=excluded.dir, min_queue=excluded.min_queue, batch=excluded.batch
	`, boolToInt(cfg.Enabled), cfg.Dir, cfg.MinQueue, cfg.Batch)
	if err != nil {
		return fmt.Errorf("save topup config: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
