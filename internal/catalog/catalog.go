// Package catalog keeps an sqlite index of recording sessions and the
// segment files they produced.
package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/signal.recorder/internal/monitoring"
	"github.com/banshee-data/signal.recorder/internal/recording"
)

var logf = monitoring.Component("catalog")

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog implements recording.Catalog on top of sqlite.
type Catalog struct {
	db *sql.DB
}

var _ recording.Catalog = (*Catalog)(nil)

// Session summarises one recording session.
type Session struct {
	ID        string           `json:"id"`
	Format    recording.Format `json:"format"`
	Directory string           `json:"directory"`
	Started   time.Time        `json:"started"`
	Ended     time.Time        `json:"ended"` // zero while recording
	Segments  int              `json:"segments"`
	Frames    uint64           `json:"frames"`
	Bytes     int64            `json:"bytes"`
}

// Open opens or creates the catalog at path and applies pending
// migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", path, err)
	}
	// A single connection keeps writes serialised and makes ":memory:"
	// databases usable.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure catalog: %w", err)
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	logf("opened %s", path)
	return &Catalog{db: db}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load catalog migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it would close db.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("catalog migration failed: %w", err)
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logf("[migrate] "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// SegmentOpened records a new segment, creating its session on first use.
func (c *Catalog) SegmentOpened(seg recording.Segment) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT OR IGNORE INTO recording_sessions (session_id, format, directory, started_ms)
		VALUES (?, ?, ?, ?)`,
		seg.SessionID, string(seg.Format), filepath.Dir(seg.Path), seg.Started.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert session %s: %w", seg.SessionID, err)
	}
	if _, err := tx.Exec(`
		INSERT INTO recording_segments (path, session_id, format, started_ms)
		VALUES (?, ?, ?, ?)`,
		seg.Path, seg.SessionID, string(seg.Format), seg.Started.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert segment %s: %w", seg.Path, err)
	}
	if _, err := tx.Exec(`
		UPDATE recording_sessions SET segments = segments + 1 WHERE session_id = ?`,
		seg.SessionID,
	); err != nil {
		return fmt.Errorf("update session %s: %w", seg.SessionID, err)
	}
	return tx.Commit()
}

// SegmentClosed stores the final frame count and size of a segment and
// rolls them up into its session.
func (c *Catalog) SegmentClosed(seg recording.Segment) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE recording_segments SET ended_ms = ?, frames = ?, bytes = ?
		WHERE path = ?`,
		seg.Ended.UnixMilli(), seg.Frames, seg.Bytes, seg.Path,
	)
	if err != nil {
		return fmt.Errorf("update segment %s: %w", seg.Path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("segment %s not in catalog", seg.Path)
	}
	if _, err := tx.Exec(`
		UPDATE recording_sessions
		SET ended_ms = ?, frames = frames + ?, bytes = bytes + ?
		WHERE session_id = ?`,
		seg.Ended.UnixMilli(), seg.Frames, seg.Bytes, seg.SessionID,
	); err != nil {
		return fmt.Errorf("update session %s: %w", seg.SessionID, err)
	}
	return tx.Commit()
}

// ListSessions returns every session, newest first.
func (c *Catalog) ListSessions() ([]Session, error) {
	rows, err := c.db.Query(`
		SELECT session_id, format, directory, started_ms, ended_ms, segments, frames, bytes
		FROM recording_sessions
		ORDER BY started_ms DESC, session_id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s       Session
			format  string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&s.ID, &format, &s.Directory, &started, &ended, &s.Segments, &s.Frames, &s.Bytes); err != nil {
			return nil, err
		}
		s.Format = recording.Format(format)
		s.Started = time.UnixMilli(started)
		if ended.Valid {
			s.Ended = time.UnixMilli(ended.Int64)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListSegments returns the segments of a session in recording order.
func (c *Catalog) ListSegments(sessionID string) ([]recording.Segment, error) {
	rows, err := c.db.Query(`
		SELECT path, session_id, format, started_ms, ended_ms, frames, bytes
		FROM recording_segments
		WHERE session_id = ?
		ORDER BY started_ms, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list segments of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var segments []recording.Segment
	for rows.Next() {
		var (
			seg     recording.Segment
			format  string
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&seg.Path, &seg.SessionID, &format, &started, &ended, &seg.Frames, &seg.Bytes); err != nil {
			return nil, err
		}
		seg.Format = recording.Format(format)
		seg.Started = time.UnixMilli(started)
		if ended.Valid {
			seg.Ended = time.UnixMilli(ended.Int64)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}
