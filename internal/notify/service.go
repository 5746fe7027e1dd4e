// Package notify delivers user-facing notices. Recent notices sit in an
// in-memory ring buffer and stream to subscribers; an optional SQLite
// history keeps them across restarts.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/vodvault/vodvault/internal/domain"
)

// ServiceConfig configures the notice service.
type ServiceConfig struct {
	// RingSize is the number of notices kept in memory. Default: 500.
	RingSize int

	// HistoryPath enables SQLite persistence when non-empty.
	HistoryPath string

	// RetentionDays is how long to keep persisted notices (0 = forever).
	RetentionDays int
}

// Service manages notices with an in-memory ring buffer, subscriber fan-out
// and optional persistence.
type Service struct {
	cfg    ServiceConfig
	logger *slog.Logger

	mu      sync.RWMutex
	notices []domain.Notice
	head    int
	count   int

	db *sql.DB

	subMu       sync.RWMutex
	subscribers map[uint64]chan domain.Notice
	subSeq      uint64
}

// NewService creates a notice service.
func NewService(cfg ServiceConfig, logger *slog.Logger) (*Service, error) {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 500
	}

	svc := &Service{
		cfg:         cfg,
		logger:      logger,
		notices:     make([]domain.Notice, cfg.RingSize),
		subscribers: make(map[uint64]chan domain.Notice),
	}

	if cfg.HistoryPath != "" {
		if err := svc.initHistory(); err != nil {
			return nil, fmt.Errorf("init notice history: %w", err)
		}
		logger.Info("notice history enabled", "path", cfg.HistoryPath)
	}

	return svc, nil
}

func (s *Service) initHistory() error {
	db, err := sql.Open("sqlite", s.cfg.HistoryPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS notices (
			id TEXT PRIMARY KEY,
			timestamp DATETIME NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			item_id TEXT,
			message TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notices_timestamp ON notices(timestamp);
	`)
	if err != nil {
		db.Close()
		return fmt.Errorf("create table: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the service and any open resources.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Emit records a notice, fans it out to subscribers, and logs it.
func (s *Service) Emit(notice domain.Notice) {
	if notice.ID == "" {
		notice.ID = domain.NoticeID(uuid.NewString())
	}
	if notice.Timestamp.IsZero() {
		notice.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.notices[s.head] = notice
	s.head = (s.head + 1) % s.cfg.RingSize
	if s.count < s.cfg.RingSize {
		s.count++
	}
	s.mu.Unlock()

	if s.db != nil {
		go s.persist(notice)
	}

	s.fanOut(notice)

	level := slog.LevelInfo
	switch notice.Severity {
	case domain.NoticeWarning:
		level = slog.LevelWarn
	case domain.NoticeError:
		level = slog.LevelError
	}
	s.logger.Log(context.Background(), level, "notice",
		"notice_id", notice.ID,
		"severity", notice.Severity,
		"source", notice.Source,
		"item_id", notice.ItemID,
		"message", notice.Message,
	)
}

// Info emits an info notice.
func (s *Service) Info(source, message string, itemID domain.ItemID) {
	s.Emit(domain.Notice{Severity: domain.NoticeInfo, Source: source, Message: message, ItemID: itemID})
}

// Success emits a success notice.
func (s *Service) Success(source, message string, itemID domain.ItemID) {
	s.Emit(domain.Notice{Severity: domain.NoticeSuccess, Source: source, Message: message, ItemID: itemID})
}

// Warning emits a warning notice.
func (s *Service) Warning(source, message string, itemID domain.ItemID) {
	s.Emit(domain.Notice{Severity: domain.NoticeWarning, Source: source, Message: message, ItemID: itemID})
}

// Error emits an error notice.
func (s *Service) Error(source, message string, itemID domain.ItemID) {
	s.Emit(domain.Notice{Severity: domain.NoticeError, Source: source, Message: message, ItemID: itemID})
}

func (s *Service) persist(notice domain.Notice) {
	_, err := s.db.Exec(`
		INSERT INTO notices (id, timestamp, severity, source, item_id, message)
		VALUES (?, ?, ?, ?, ?, ?)
	`, notice.ID, notice.Timestamp, notice.Severity, notice.Source, notice.ItemID, notice.Message)
	if err != nil {
		s.logger.Warn("failed to persist notice", "notice_id", notice.ID, "error", err)
	}
}

// Recent returns the most recent n notices, newest first.
func (s *Service) Recent(n int) []domain.Notice {
	if n <= 0 {
		n = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > s.count {
		n = s.count
	}

	result := make([]domain.Notice, 0, n)
	for i := 0; i < n; i++ {
		idx := (s.head - 1 - i + s.cfg.RingSize) % s.cfg.RingSize
		notice := s.notices[idx]
		if notice.ID == "" {
			continue
		}
		result = append(result, notice)
	}
	return result
}

// Subscribe creates a subscriber and returns a channel of notices. The
// caller must call Unsubscribe when done.
func (s *Service) Subscribe() (uint64, <-chan domain.Notice) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.subSeq++
	id := s.subSeq
	ch := make(chan domain.Notice, 100)
	s.subscribers[id] = ch

	return id, ch
}

// Unsubscribe removes a subscriber.
func (s *Service) Unsubscribe(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Service) fanOut(notice domain.Notice) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- notice:
		default:
			s.logger.Warn("subscriber buffer full, dropping notice", "subscriber_id", id, "notice_id", notice.ID)
		}
	}
}

// CleanupOld removes persisted notices older than the retention period.
func (s *Service) CleanupOld(ctx context.Context) error {
	if s.db == nil || s.cfg.RetentionDays <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -s.cfg.RetentionDays)
	result, err := s.db.ExecContext(ctx, "DELETE FROM notices WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("delete old notices: %w", err)
	}

	if deleted, _ := result.RowsAffected(); deleted > 0 {
		s.logger.Info("cleaned up old notices", "deleted", deleted, "cutoff", cutoff)
	}
	return nil
}
