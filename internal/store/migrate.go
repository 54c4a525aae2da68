package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// SchemaVersion is the version this build expects.
const SchemaVersion = 3

// VersionUninitialized is the stored version of a store that has never
// been migrated.
const VersionUninitialized = 0

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Execer is the part of *sql.DB the migrator needs.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Migrator applies numbered SQL scripts ("NNN_name.sql") up to Target and
// records the reached version in VersionFile.
type Migrator struct {
	DB          Execer
	Scripts     fs.FS
	VersionFile string
	Target      int

	log *log.Entry
}

// NewMigrator returns a migrator over the embedded scripts targeting SchemaVersion.
func NewMigrator(db Execer, versionFile string) *Migrator {
	scripts, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		panic(err)
	}
	return &Migrator{
		DB:          db,
		Scripts:     scripts,
		VersionFile: versionFile,
		Target:      SchemaVersion,
	}
}

func (m *Migrator) logger() *log.Entry {
	if m.log == nil {
		m.log = log.WithField("component", "migrator")
	}
	return m.log
}

// StoredVersion reads the version file. A missing or empty file means
// VersionUninitialized.
func (m *Migrator) StoredVersion() (int, error) {
	if m.VersionFile == "" {
		return VersionUninitialized, nil
	}
	data, err := os.ReadFile(m.VersionFile)
	if err != nil {
		if os.IsNotExist(err) {
			return VersionUninitialized, nil
		}
		return 0, err
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return VersionUninitialized, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q in %s", raw, m.VersionFile)
	}
	return v, nil
}

// ReadVersionFile returns the schema version recorded at path.
func ReadVersionFile(path string) (int, error) {
	return (&Migrator{VersionFile: path}).StoredVersion()
}

// Run applies every pending step in ascending order. The version file is
// written only when all of them succeed. It returns the versions whose
// scripts actually ran.
func (m *Migrator) Run(ctx context.Context) ([]int, error) {
	stored, err := m.StoredVersion()
	if err != nil {
		return nil, err
	}
	return m.runFrom(ctx, stored)
}

// Reapply runs every script from the first version regardless of the
// version file, for a database that lost its tables.
func (m *Migrator) Reapply(ctx context.Context) ([]int, error) {
	return m.runFrom(ctx, VersionUninitialized)
}

func (m *Migrator) runFrom(ctx context.Context, stored int) ([]int, error) {
	if stored >= m.Target {
		return nil, nil
	}

	scripts, err := m.index()
	if err != nil {
		return nil, err
	}

	var applied []int
	for v := stored + 1; v <= m.Target; v++ {
		name, ok := scripts[v]
		if !ok {
			m.logger().WithField("version", v).Debug("no migration script, skipping")
			continue
		}
		body, err := fs.ReadFile(m.Scripts, name)
		if err != nil {
			return applied, &MigrationError{Version: v, Err: err}
		}
		if _, err := m.DB.ExecContext(ctx, string(body)); err != nil {
			m.logger().WithError(err).WithField("version", v).Error("migration failed")
			return applied, &MigrationError{Version: v, Err: err}
		}
		m.logger().WithFields(log.Fields{"version": v, "script": name}).Info("applied migration")
		applied = append(applied, v)
	}

	if err := m.writeVersion(m.Target); err != nil {
		return applied, fmt.Errorf("recording schema version: %w", err)
	}
	return applied, nil
}

// index maps version number to script name.
func (m *Migrator) index() (map[int]string, error) {
	entries, err := fs.ReadDir(m.Scripts, ".")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[int]string{}, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make(map[int]string, len(names))
	for _, name := range names {
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.Atoi(strings.TrimSuffix(prefix, ".sql"))
		if err != nil {
			continue
		}
		if _, dup := out[v]; dup {
			return nil, fmt.Errorf("duplicate migration version %d", v)
		}
		out[v] = name
	}
	return out, nil
}

// writeVersion replaces the version file atomically.
func (m *Migrator) writeVersion(v int) error {
	path := m.VersionFile
	if path == "" {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.WriteString(strconv.Itoa(v) + "\n"); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
