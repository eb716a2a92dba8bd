package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"kisanmitra/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured under dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// A single connection keeps :memory: databases shared and serialises sqlite writers.
		db.SetMaxOpenConns(1)
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the audit table is present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS chat_requests (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				request_id TEXT NOT NULL,
				ui_language TEXT NOT NULL,
				user_language TEXT NOT NULL,
				provider TEXT NOT NULL,
				status TEXT NOT NULL,
				error TEXT,
				latency_ms INTEGER NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_requests_created_at ON chat_requests(created_at DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_chat_requests_request_id ON chat_requests(request_id)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS chat_requests (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				request_id VARCHAR(64) NOT NULL,
				ui_language VARCHAR(16) NOT NULL,
				user_language VARCHAR(16) NOT NULL,
				provider VARCHAR(100) NOT NULL,
				status VARCHAR(32) NOT NULL,
				error TEXT,
				latency_ms BIGINT NOT NULL,
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_chat_requests_created_at (created_at),
				INDEX idx_chat_requests_request_id (request_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}

// Request statuses stored in the audit log.
const (
	StatusOK       = "ok"
	StatusError    = "error"
	StatusRejected = "rejected"
)

// ChatRequest is one audited /chat call. Message text is never stored.
type ChatRequest struct {
	RequestID    string
	UILanguage   string
	UserLanguage string
	Provider     string
	Status       string
	Error        string
	Latency      time.Duration
	CreatedAt    time.Time
}

// LanguageCount is one row of the per-language summary.
type LanguageCount struct {
	UILanguage string `json:"uiLanguage"`
	Status     string `json:"status"`
	Count      int64  `json:"count"`
}

// Audit records chat requests.
type Audit struct {
	db *sql.DB
}

// NewAudit wraps a migrated database.
func NewAudit(db *sql.DB) *Audit {
	return &Audit{db: db}
}

// Record inserts one request row.
func (a *Audit) Record(ctx context.Context, r ChatRequest) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO chat_requests (request_id, ui_language, user_language, provider, status, error, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RequestID, r.UILanguage, r.UserLanguage, r.Provider, r.Status, errText,
		r.Latency.Milliseconds(), r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record chat request: %w", err)
	}
	return nil
}

// Summary counts requests since the given instant, grouped by UI language and status.
func (a *Audit) Summary(ctx context.Context, since time.Time) ([]LanguageCount, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT ui_language, status, COUNT(*) FROM chat_requests
		 WHERE created_at >= ?
		 GROUP BY ui_language, status
		 ORDER BY ui_language, status`,
		since.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("query summary: %w", err)
	}
	defer rows.Close()

	var out []LanguageCount
	for rows.Next() {
		var lc LanguageCount
		if err := rows.Scan(&lc.UILanguage, &lc.Status, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}
