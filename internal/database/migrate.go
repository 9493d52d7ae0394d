// Package database はPostgreSQL接続とスキーママイグレーションを提供する。
// マイグレーションはバイナリに埋め込まれ、migrateコマンドから適用される。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "migrations"

// MigrationResult はマイグレーション適用後のスキーマの状態を表す。
type MigrationResult struct {
	Version uint
	Changed bool
}

// NewMigrator は埋め込みマイグレーションを読み込むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// RunMigrations は未適用のマイグレーションをすべて適用し、適用後のバージョンを返す。
// 前回の適用が途中で失敗しdirtyのままの場合は、手動で修復するまで適用しない。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationResult{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return MigrationResult{}, fmt.Errorf("schema is dirty at version %d", version)
	}

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationResult{}, fmt.Errorf("failed to run migrations: %w", err)
		}
		changed = false
	}

	version, _, err = m.Version()
	if err != nil {
		return MigrationResult{}, fmt.Errorf("failed to read schema version: %w", err)
	}
	return MigrationResult{Version: version, Changed: changed}, nil
}

// EmbeddedVersions は埋め込まれたマイグレーションのバージョンを昇順で返す。
// up/downのどちらかが欠けているバージョンがあればエラーを返す。
func EmbeddedVersions() ([]uint, error) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	directions := make(map[uint]map[source.Direction]bool)
	for _, e := range entries {
		mig, err := source.Parse(e.Name())
		if err != nil {
			return nil, fmt.Errorf("invalid migration file %q: %w", e.Name(), err)
		}
		if directions[mig.Version] == nil {
			directions[mig.Version] = make(map[source.Direction]bool)
		}
		directions[mig.Version][mig.Direction] = true
	}

	versions := make([]uint, 0, len(directions))
	for v, dirs := range directions {
		if !dirs[source.Up] || !dirs[source.Down] {
			return nil, fmt.Errorf("migration %d must have both up and down files", v)
		}
		versions = append(versions, v)
	}
	slices.Sort(versions)
	return versions, nil
}
