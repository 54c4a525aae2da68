package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DefaultTokenTTL is how long an issued bearer token stays valid.
const DefaultTokenTTL = 10 * 24 * time.Hour

// Store bundles the document and auth stores over one SQLite database.
// It is built once per process and handed to whoever needs it.
type Store struct {
	db *sql.DB

	Models *ModelStore
	Auth   *AuthStore

	log *log.Entry
}

type Options struct {
	// Path of the SQLite file. ":memory:" keeps everything in process.
	Path string
	// SchemaVersionFile holds the applied schema version. Empty means the
	// version is not persisted and every open migrates from scratch.
	SchemaVersionFile string
	TokenTTL          time.Duration
	Now               func() time.Time
}

// Open opens (creating if needed) the database at opts.Path and brings the
// schema up to SchemaVersion. A failed migration is logged and the store is
// still returned, matching the "usable but possibly behind" contract.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := log.WithField("component", "store")

	db, err := openDB(opts.Path)
	if err != nil {
		return nil, err
	}

	migrate(ctx, db, opts.SchemaVersionFile, logger)

	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		db:     db,
		Models: NewModelStore(NewEngine(db, modelsTable, modelsColumn)),
		Auth:   NewAuthStoreWithNow(db, ttl, now),
		log:    logger,
	}
	logger.WithField("path", opts.Path).Info("SQLite store initialized")
	return s, nil
}

// migrate brings the schema up to date. A version file that claims a schema
// the database does not have (deleted db file, fresh :memory:) is not
// trusted: every script is applied again.
func migrate(ctx context.Context, db *sql.DB, versionFile string, logger *log.Entry) {
	m := NewMigrator(db, versionFile)
	run := m.Run

	stored, err := m.StoredVersion()
	if err == nil && stored > VersionUninitialized {
		present, err := hasTable(ctx, db, modelsTable)
		if err != nil {
			logger.WithError(err).Error("checking schema")
		} else if !present {
			logger.WithFields(log.Fields{
				"version_file":   versionFile,
				"stored_version": stored,
			}).Warn("version file does not match the database, re-applying migrations")
			run = m.Reapply
		}
	}

	if applied, err := run(ctx); err != nil {
		logger.WithError(err).Error("schema migration failed")
	} else if len(applied) > 0 {
		logger.WithField("versions", applied).Info("schema migrated")
	}
}

func hasTable(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?)`, name).Scan(&found)
	if err != nil {
		return false, storageErr("schema check", err)
	}
	return found, nil
}

// DB exposes the underlying handle for the migrate command.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("missing database path")
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: an in-memory database only exists on the connection
	// that created it.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if path != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enabling WAL mode: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	return db, nil
}
