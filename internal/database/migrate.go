// Package database はPostgreSQL接続と、埋め込みSQLによるスキーマ管理を提供する。
package database

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// schemaMigrations は番号ごとにup/downの組で置いたスキーマ定義。
//
//go:embed migrations/*.sql
var schemaMigrations embed.FS

const schemaDir = "migrations"

// MigrationResult は適用前後のスキーマバージョン。0は未適用を表す。
type MigrationResult struct {
	From uint
	To   uint
}

// Applied は今回1件以上適用したかを返す。
func (r MigrationResult) Applied() bool {
	return r.To != r.From
}

// migrateLogger はgolang-migrateの進捗ログをslogに流す。
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l migrateLogger) Verbose() bool {
	return false
}

// NewMigrator は埋め込みSQLを読み込むmigrateインスタンスを生成する。
func NewMigrator(databaseURL string) (*migrate.Migrate, error) {
	source, err := iofs.New(schemaMigrations, schemaDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", source, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: slog.Default()}

	return m, nil
}

// RunMigrations は未適用のマイグレーションを全て適用し、前後のバージョンを返す。
// 前回の適用が途中で失敗したdirty状態では何も適用せずにエラーを返す。
func RunMigrations(databaseURL string) (MigrationResult, error) {
	m, err := NewMigrator(databaseURL)
	if err != nil {
		return MigrationResult{}, err
	}
	defer m.Close()

	from, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{}, err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationResult{From: from}, fmt.Errorf("failed to run migrations: %w", err)
	}

	to, err := schemaVersion(m)
	if err != nil {
		return MigrationResult{From: from}, err
	}
	return MigrationResult{From: from, To: to}, nil
}

func schemaVersion(m *migrate.Migrate) (uint, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("schema version %d is dirty: repair it and force the version before migrating", v)
	}
	return v, nil
}

// LatestVersion は埋め込まれたマイグレーションの最新番号を返す。
// 番号にupかdownの片方しかない場合はエラー。
func LatestVersion() (uint, error) {
	entries, err := fs.ReadDir(schemaMigrations, schemaDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read migrations: %w", err)
	}

	const (
		hasUp = 1 << iota
		hasDown
	)
	found := make(map[uint]int)
	for _, e := range entries {
		name := e.Name()
		num, rest, ok := strings.Cut(name, "_")
		v, err := strconv.ParseUint(num, 10, 32)
		if !ok || err != nil {
			return 0, fmt.Errorf("unexpected migration file name %q", name)
		}
		switch {
		case strings.HasSuffix(rest, ".up.sql"):
			found[uint(v)] |= hasUp
		case strings.HasSuffix(rest, ".down.sql"):
			found[uint(v)] |= hasDown
		default:
			return 0, fmt.Errorf("unexpected migration file name %q", name)
		}
	}

	var latest uint
	for v, flags := range found {
		if flags != hasUp|hasDown {
			return 0, fmt.Errorf("migration %d must have both up and down files", v)
		}
		if v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return 0, errors.New("no migrations embedded")
	}
	return latest, nil
}
