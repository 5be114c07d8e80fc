package health

import (
	"context"
	"database/sql"
	"time"
)

// Service reports process health, including the run ledger connection.
type Service struct {
	DB *sql.DB
}

// NewService constructs a health service. db may be nil when the ledger is in memory.
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status returns the health payload. ok is false when the ledger database is unreachable.
func (s *Service) Status(ctx context.Context) map[string]any {
	if s == nil || s.DB == nil {
		return map[string]any{"ok": true, "ledger": "memory"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.DB.PingContext(pingCtx); err != nil {
		return map[string]any{"ok": false, "ledger": "postgres", "error": err.Error()}
	}
	return map[string]any{"ok": true, "ledger": "postgres"}
}
