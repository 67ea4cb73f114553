// Package db stores snapshot blobs in an encrypted SQLCipher database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDataDirectory is the default root directory for database files
	DefaultDataDirectory = "./data"

	// DBName is the filename of the workspace database
	DBName = "inkpad.db"

	// MaxOpenConns is the maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 2

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns = 1
)

// DB wraps an encrypted SQLite connection pool.
type DB struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the encrypted database in dataDir.
// keyHex is the 64-character hex SQLCipher key.
func Open(dataDir, keyHex string) (*DB, error) {
	if len(keyHex) != 64 {
		return nil, fmt.Errorf("database key must be 64 hex chars, got %d", len(keyHex))
	}
	if dataDir == "" {
		dataDir = DefaultDataDirectory
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBName)
	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return &DB{db: sqlDB, path: dbPath}, nil
}

// OpenInMemory opens a private in-memory encrypted database. name keeps
// concurrently open test databases apart.
func OpenInMemory(name, keyHex string) (*DB, error) {
	if name == "" {
		name = "inkpad"
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096", name, keyHex)

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(MaxOpenConns)

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := applyFastSQLitePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}
	return &DB{db: sqlDB, path: ":memory:"}, nil
}

// initialize verifies the key and applies the schema.
func initialize(sqlDB *sql.DB) error {
	// If the encryption key is wrong, this is the first statement to fail.
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	if _, err := sqlDB.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize schema (wrong key?): %w", err)
	}
	return nil
}

// SQL exposes the underlying pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path, or ":memory:".
func (d *DB) Path() string {
	return d.path
}

// Close closes the connection pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

func applyFastSQLitePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
