package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ytget/yt-offline/internal/model"
)

// DefaultDatabaseFile is used when no database URL is configured
const DefaultDatabaseFile = "./yt-offline.db"

// connectionPragmas are applied by the driver to every pooled connection.
// A pragma already named in the configured DSN is left as configured.
var connectionPragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"synchronous(NORMAL)",
}

// SQLite is a Store backed by modernc.org/sqlite
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite database using the configured URL.
// Supported formats:
//   - sqlite3:./data.db
//   - sqlite:./data.db
//   - file:./data.db
//   - ./data.db
func OpenSQLite(databaseURL string) (*SQLite, error) {
	dsn := normalizeDSN(databaseURL)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// SQLite works best with a single writer connection for WAL
	db.SetMaxOpenConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func normalizeDSN(databaseURL string) string {
	dsn := strings.TrimSpace(databaseURL)
	if dsn == "" {
		dsn = DefaultDatabaseFile
	}

	if idx := strings.Index(dsn, ":"); idx != -1 {
		prefix := dsn[:idx]
		if prefix == "sqlite3" || prefix == "sqlite" {
			dsn = dsn[idx+1:]
		}
	}

	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = DefaultDatabaseFile
	}

	if !strings.HasPrefix(dsn, "file:") {
		if !strings.Contains(dsn, ":/") && !strings.HasPrefix(dsn, "./") && !strings.HasPrefix(dsn, "/") {
			dsn = "./" + dsn
		}
		dsn = "file:" + filepath.Clean(dsn)
	}

	for _, pragma := range connectionPragmas {
		name, _, _ := strings.Cut(pragma, "(")
		if strings.Contains(dsn, name) {
			continue
		}
		sep := "&"
		if !strings.Contains(dsn, "?") {
			sep = "?"
		}
		dsn += sep + "_pragma=" + pragma
	}

	return dsn
}

// configurePragmas sets the database-wide options; journal_mode persists in the file
func configurePragmas(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("configure sqlite journal mode: %w", err)
	}
	return nil
}

func ensureSchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS playlists (
			url TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			playlist_id TEXT NOT NULL DEFAULT '',
			title TEXT NOT NULL DEFAULT '',
			video_order TEXT NOT NULL DEFAULT '{}',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS videos (
			playlist_url TEXT NOT NULL,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			duration INTEGER NOT NULL DEFAULT 0,
			watched_position INTEGER NOT NULL DEFAULT 0,
			details TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (playlist_url, id),
			FOREIGN KEY(playlist_url) REFERENCES playlists(url) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_videos_playlist_seq ON videos(playlist_url, seq);`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// LoadAll returns every stored playlist with its videos in storage order
func (s *SQLite) LoadAll(ctx context.Context) ([]model.PlaylistRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT url, playlist_id, title, video_order
		FROM playlists ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query playlists: %w", err)
	}
	defer rows.Close()

	var records []model.PlaylistRecord
	index := make(map[string]int)
	for rows.Next() {
		var (
			rec   model.PlaylistRecord
			order string
		)
		if err := rows.Scan(&rec.URL, &rec.ID, &rec.Title, &order); err != nil {
			return nil, fmt.Errorf("scan playlist: %w", err)
		}
		if err := json.Unmarshal([]byte(order), &rec.Order); err != nil {
			return nil, fmt.Errorf("decode order of %s: %w", rec.URL, err)
		}
		rec.Videos = []model.VideoRecord{}
		index[rec.URL] = len(records)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	videoRows, err := s.db.QueryContext(ctx, `SELECT playlist_url, id, title, duration, watched_position, details
		FROM videos ORDER BY playlist_url, seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer videoRows.Close()

	for videoRows.Next() {
		var (
			url string
			v   model.VideoRecord
		)
		if err := videoRows.Scan(&url, &v.ID, &v.Title, &v.Duration, &v.WatchedPosition, &v.Details); err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		if i, ok := index[url]; ok {
			records[i].Videos = append(records[i].Videos, v)
		}
	}

	return records, videoRows.Err()
}

// Save inserts or replaces a playlist and its videos in one transaction
func (s *SQLite) Save(ctx context.Context, record model.PlaylistRecord) error {
	order := record.Order
	if order == nil {
		order = map[string]int{}
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("encode order: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `INSERT INTO playlists
		(url, seq, playlist_id, title, video_order, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM playlists), ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			playlist_id = excluded.playlist_id,
			title = excluded.title,
			video_order = excluded.video_order,
			updated_at = excluded.updated_at`,
		record.URL, record.ID, record.Title, string(orderJSON), now, now)
	if err != nil {
		return fmt.Errorf("save playlist: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE playlist_url = ?`, record.URL); err != nil {
		return fmt.Errorf("clear videos: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO videos
		(playlist_url, id, seq, title, duration, watched_position, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare video insert: %w", err)
	}
	defer stmt.Close()

	for i, v := range record.Videos {
		if _, err := stmt.ExecContext(ctx, record.URL, v.ID, i, v.Title, v.Duration, v.WatchedPosition, v.Details); err != nil {
			return fmt.Errorf("save video %s: %w", v.ID, err)
		}
	}

	return tx.Commit()
}

// Delete removes a playlist and its videos
func (s *SQLite) Delete(ctx context.Context, url string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE url = ?`, url); err != nil {
		return fmt.Errorf("delete playlist: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLite) Close() error {
	return s.db.Close()
}

var _ Store = (*SQLite)(nil)
