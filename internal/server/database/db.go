package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

type DB struct {
	*sql.DB
}

// Open opens a connection to the SQLite database, runs migrations and seeds
// the operator accounts.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedOperators(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to seed operators: %w", err)
	}

	return &DB{db}, nil
}

const initialSchema = `
CREATE TABLE IF NOT EXISTS operators (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name  TEXT NOT NULL,
	role          TEXT NOT NULL,
	dependency    TEXT NOT NULL DEFAULT 'itsa',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS activities (
	id                TEXT PRIMARY KEY,
	operator_username TEXT NOT NULL,
	dependency        TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL,
	command           TEXT NOT NULL DEFAULT '',
	created_at_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activities_created ON activities(created_at_ms DESC);

CREATE TABLE IF NOT EXISTS logs (
	id                TEXT PRIMARY KEY,
	action            TEXT NOT NULL,
	category          TEXT NOT NULL,
	detail            TEXT,
	operator_username TEXT NOT NULL DEFAULT '',
	outcome           TEXT NOT NULL,
	created_at_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_logs_created ON logs(created_at_ms DESC);

CREATE TABLE IF NOT EXISTS alerts (
	id                TEXT PRIMARY KEY,
	message           TEXT NOT NULL,
	kind              TEXT NOT NULL,
	priority          TEXT NOT NULL,
	operator_username TEXT NOT NULL DEFAULT '',
	read              INTEGER NOT NULL DEFAULT 0,
	created_at_ms     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_unread ON alerts(read, created_at_ms DESC);
`

// runMigrations applies the SQL schema.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", "001_initial").Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if count > 0 {
		return nil
	}

	if _, err := db.Exec(initialSchema); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}

	_, err = db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", "001_initial")
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

type seedOperator struct {
	username    string
	password    string
	displayName string
	role        string
}

// seedOperators provisions the fixed operator roster. Existing rows are left
// untouched so a password change survives restarts.
func seedOperators(db *sql.DB) error {
	roster := []seedOperator{
		{"admin", "admin123", "Administrador", "admin"},
		{"juan", "12345", "Juan Pérez", "operator"},
		{"maria", "abcde", "María López", "operator"},
		{"luis", "luis123", "Luis Sánchez", "operator"},
		{"daniela", "daniela123", "Daniela Gómez", "operator"},
	}

	for _, op := range roster {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM operators WHERE username = ?", op.username).Scan(&count)
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(op.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		_, err = db.Exec(
			"INSERT INTO operators (id, username, password_hash, display_name, role) VALUES (?, ?, ?, ?, ?)",
			uuid.NewString(), op.username, string(hash), op.displayName, op.role,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
