package db

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationStatus reports whether one embedded migration has been applied.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
}

// Migrator applies the embedded schema migrations.
type Migrator struct {
	m *migrate.Migrate
}

func newSource() (source.Driver, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migration source: %w", err)
	}
	return src, nil
}

// NewMigrator connects golang-migrate to databaseURL using the embedded source.
func NewMigrator(databaseURL string) (*Migrator, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return &Migrator{m: m}, nil
}

// Close releases the source and database handles.
func (mg *Migrator) Close() error {
	srcErr, dbErr := mg.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Up applies every pending migration and returns how many were applied.
func (mg *Migrator) Up() (int, error) {
	before, err := mg.Pending()
	if err != nil {
		return 0, err
	}
	if err := mg.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply migrations: %w", err)
	}
	return len(before), nil
}

// Version returns the applied schema version. ok is false on an empty schema.
func (mg *Migrator) Version() (version uint, dirty bool, ok bool, err error) {
	v, d, err := mg.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("read schema version: %w", err)
	}
	return v, d, true, nil
}

// Status lists every embedded migration with its applied state.
func (mg *Migrator) Status() ([]MigrationStatus, error) {
	current, dirty, ok, err := mg.Version()
	if err != nil {
		return nil, err
	}
	if dirty {
		return nil, fmt.Errorf("schema version %d is dirty; fix it manually before migrating", current)
	}

	available, err := EmbeddedMigrations()
	if err != nil {
		return nil, err
	}
	for i := range available {
		available[i].Applied = ok && available[i].Version <= current
	}
	return available, nil
}

// Pending lists the embedded migrations not applied yet.
func (mg *Migrator) Pending() ([]MigrationStatus, error) {
	all, err := mg.Status()
	if err != nil {
		return nil, err
	}
	var pending []MigrationStatus
	for _, s := range all {
		if !s.Applied {
			pending = append(pending, s)
		}
	}
	return pending, nil
}

// EmbeddedMigrations lists the migrations compiled into the binary in
// version order.
func EmbeddedMigrations() ([]MigrationStatus, error) {
	src, err := newSource()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	var out []MigrationStatus
	v, err := src.First()
	for err == nil {
		r, name, readErr := src.ReadUp(v)
		if readErr != nil {
			return nil, fmt.Errorf("read migration %d: %w", v, readErr)
		}
		r.Close()
		out = append(out, MigrationStatus{Version: v, Name: name})
		v, err = src.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	return out, nil
}
