package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"storefront/internal/logger"
)

// =============================================================================
// CONSTANTS AND GLOBAL VARIABLES
// =============================================================================

var (
	db   *sql.DB
	dbMu sync.RWMutex
)

// Database connection pool configuration
const (
	maxOpenConns    = 25
	maxIdleConns    = 5
	connMaxLifetime = time.Hour
	connMaxIdleTime = time.Minute * 15
	queryTimeout    = time.Second * 30
)

const TimeFormat = time.RFC3339

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("record not found")

// =============================================================================
// DATABASE CONNECTION AND SETUP
// =============================================================================

// InitDB opens the SQLite database with connection pooling and retries.
// Use a file path: every pooled connection to ":memory:" would see its own database.
func InitDB(dataSourceName string) error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		db.Close()
		db = nil
	}

	return initDBWithRetry(dataSourceName, 3)
}

func initDBWithRetry(dataSourceName string, maxRetries int) error {
	for attempt := 1; attempt <= maxRetries; attempt++ {
		conn, err := sql.Open("sqlite", dataSourceName)
		if err != nil {
			logger.LogWarn("Database connection attempt %d failed: %v", attempt, err)
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to open database after %d attempts: %w", maxRetries, err)
		}

		conn.SetMaxOpenConns(maxOpenConns)
		conn.SetMaxIdleConns(maxIdleConns)
		conn.SetConnMaxLifetime(connMaxLifetime)
		conn.SetConnMaxIdleTime(connMaxIdleTime)

		ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
		err = conn.PingContext(ctx)
		cancel()

		if err != nil {
			logger.LogWarn("Database ping attempt %d failed: %v", attempt, err)
			conn.Close()
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt) * time.Second)
				continue
			}
			return fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Pragma failures are logged but never fail initialization
		if err := enablePragmas(conn); err != nil {
			logger.LogWarn("Failed to enable some database optimizations: %v", err)
		}

		db = conn
		logger.LogInfo("Database connection established successfully (attempt %d)", attempt)
		return nil
	}

	return fmt.Errorf("failed to initialize database after %d attempts", maxRetries)
}

func enablePragmas(conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}

	var lastErr error
	for _, pragma := range pragmas {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		_, err := conn.ExecContext(ctx, pragma)
		cancel()

		if err != nil {
			logger.LogWarn("Failed to execute %s: %v", pragma, err)
			lastErr = err
		}
	}
	return lastErr
}

// GetDB returns the database connection
func GetDB() (*sql.DB, error) {
	dbMu.RLock()
	defer dbMu.RUnlock()

	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	return db, nil
}

// Ping checks the connection for the health endpoint.
func Ping(ctx context.Context) error {
	conn, err := GetDB()
	if err != nil {
		return err
	}
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database connection unhealthy: %w", err)
	}
	return nil
}

// CloseDB closes the database connection gracefully
func CloseDB() error {
	dbMu.Lock()
	defer dbMu.Unlock()

	if db != nil {
		err := db.Close()
		db = nil
		return err
	}
	return nil
}

// =============================================================================
// SCHEMA DEFINITIONS
// =============================================================================

const kvTableSchema = `
    CREATE TABLE IF NOT EXISTS kv_store (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv_store(updated_at);`

const ordersTableSchema = `
    CREATE TABLE IF NOT EXISTS orders (
        id TEXT PRIMARY KEY,
        order_date TEXT NOT NULL,
        first_name TEXT NOT NULL,
        last_name TEXT NOT NULL,
        email TEXT NOT NULL,
        phone TEXT NOT NULL,
        address TEXT NOT NULL,
        city TEXT NOT NULL,
        postal_code TEXT NOT NULL,
        items_json TEXT NOT NULL DEFAULT '[]',
        subtotal REAL NOT NULL DEFAULT 0,
        shipping REAL NOT NULL DEFAULT 0,
        total REAL NOT NULL DEFAULT 0,
        payment_method TEXT NOT NULL,
        delivery_time TEXT NOT NULL,
        notes TEXT DEFAULT '',
        status TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_orders_date ON orders(order_date);
    CREATE INDEX IF NOT EXISTS idx_orders_email ON orders(email);`

// =============================================================================
// TABLE CREATION
// =============================================================================

func CreateTables() error {
	tables := []struct {
		name   string
		schema string
	}{
		{"kv_store", kvTableSchema},
		{"orders", ordersTableSchema},
	}

	for _, table := range tables {
		if _, err := ExecDB(context.Background(), table.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", table.name, err)
		}
	}
	return nil
}

// Open initializes the database and creates the tables in one step.
func Open(dataSourceName string) error {
	if dir := filepath.Dir(dataSourceName); !strings.HasPrefix(dataSourceName, "file:") && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if err := InitDB(dataSourceName); err != nil {
		return err
	}
	if err := CreateTables(); err != nil {
		CloseDB()
		return err
	}
	return nil
}

// =============================================================================
// UTILITY FUNCTIONS (JSON AND TIME HANDLING)
// =============================================================================

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return string(data), nil
}

func unmarshalJSON(data string, v interface{}) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

func parseTime(timeStr string) (time.Time, error) {
	return time.Parse(TimeFormat, timeStr)
}

// =============================================================================
// GENERIC DATABASE OPERATIONS
// =============================================================================

// ExecDB executes a statement with a bounded timeout
func ExecDB(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	result, err := dbConn.ExecContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database exec failed: error=%v", err)
		return nil, fmt.Errorf("database execution failed: %w", err)
	}

	return result, nil
}

// QueryDB executes a query and returns rows; the caller's context bounds iteration.
func QueryDB(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}

	rows, err := dbConn.QueryContext(ctx, query, args...)
	if err != nil {
		logger.LogError("Database query failed: error=%v", err)
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return rows, nil
}

// QueryRowDB executes a query that returns a single row
func QueryRowDB(ctx context.Context, query string, args ...interface{}) (*sql.Row, error) {
	dbConn, err := GetDB()
	if err != nil {
		return nil, err
	}
	return dbConn.QueryRowContext(ctx, query, args...), nil
}
