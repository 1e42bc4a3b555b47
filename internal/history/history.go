// Package history persists committed dictation sessions to a local SQLite
// database so transcripts survive past the clipboard.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Session is one committed dictation or file-import result.
type Session struct {
	ID           uint      `gorm:"primaryKey"`
	CreatedAt    time.Time `gorm:"index"`
	RequestID    string    `gorm:"size:32;index"`
	Transcript   string
	Engine       string `gorm:"size:16"`
	Fallback     bool
	AudioSeconds float64
	ElapsedMS    int64
	Source       string `gorm:"size:16"` // "live" or "file"
}

// Store wraps the SQLite-backed session log.
type Store struct {
	db *gorm.DB
}

// DefaultPath resolves the XDG state location for the history database.
func DefaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "ditado", "history.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for history: %w", err)
	}
	return filepath.Join(home, ".local", "state", "ditado", "history.db"), nil
}

// Open creates the parent directory if needed, opens the database, and
// migrates the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history db %q: %w", path, err)
	}
	if err := db.AutoMigrate(&Session{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one session row.
func (s *Store) Record(ctx context.Context, session Session) error {
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return fmt.Errorf("record session: %w", err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []Session
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	return sessions, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
