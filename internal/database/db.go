package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/lib/pq"
)

// APIとワーカーは別プロセスのため、それぞれがこの上限を持つ。
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
)

// applicationName はpg_stat_activityで接続元を識別する名前。
const applicationName = "projecify"

// Open はPostgreSQLの接続プールを開く。接続は最初の問い合わせかPingまで行われない。
// URLにapplication_nameが無ければprojecifyを付ける。
func Open(databaseURL string) (*sql.DB, error) {
	dsn, err := withApplicationName(databaseURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return db, nil
}

// withApplicationName はpostgres://形式のURLを検証し、application_nameを補う。
// エラーにはパスワードを含めない。
func withApplicationName(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", errors.New("invalid database URL")
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported database URL scheme %q", u.Scheme)
	}

	q := u.Query()
	if q.Get("application_name") == "" {
		q.Set("application_name", applicationName)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
