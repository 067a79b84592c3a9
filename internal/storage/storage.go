// Package storage provides an append-only operation journal using GORM
// and SQLite. The journal is an audit trail: the registry documents on
// disk remain the sole authoritative state, and nothing reads the
// journal back during normal operation.
package storage

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors following Dave Cheney's principle: define errors as values
var (
	ErrNilOperation = errors.New("operation cannot be nil")
)

// Operation is one journal entry: a single register, update, or delete
// attempt against the registry.
type Operation struct {
	ID uint `gorm:"primaryKey"`

	// What was attempted
	OperationID string `gorm:"not null;uniqueIndex"`
	Action      string `gorm:"not null;index"`
	Package     string `gorm:"not null;index:idx_package_version"`
	Version     string `gorm:"index:idx_package_version"`

	// How the distribution resolved
	ArtifactKind string
	DownloadRef  string
	RequiresAuth bool

	// Outcome
	Succeeded    bool `gorm:"not null;default:false"`
	ErrorMessage string
	DurationMs   int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Journal defines the interface for operation journal writes.
type Journal interface {
	Close() error
	RecordOperation(*Operation) error
}

// DB wraps gorm.DB with journal operations.
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// InitDB initializes the database connection and runs migrations
func InitDB(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto-migrate schema
	if err := db.AutoMigrate(&Operation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// RecordOperation appends a new journal entry
func (d *DB) RecordOperation(op *Operation) error {
	if op == nil {
		return ErrNilOperation
	}
	if err := d.db.Create(op).Error; err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

// ListByPackage returns journal entries for one package, newest first.
// Exposed for the audit surface only; the mutation path never calls it.
func (d *DB) ListByPackage(name string) ([]*Operation, error) {
	var ops []*Operation
	if err := d.db.Where("package = ?", name).Order("created_at DESC").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list operations for package %s: %w", name, err)
	}
	return ops, nil
}

// ListAll returns all journal entries, newest first.
func (d *DB) ListAll() ([]*Operation, error) {
	var ops []*Operation
	if err := d.db.Order("created_at DESC").Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to list all operations: %w", err)
	}
	return ops, nil
}
