package memory

import (
	"context"
	"sync"

	"trivia-quiz-service/internal/domain"
)

// historyCap bounds the per-owner history the same way the production store
// trims it: only the newest entries are kept.
const historyCap = 20

// StatsRecorder keeps per-owner quiz history in memory, newest first.
type StatsRecorder struct {
	mu      sync.RWMutex
	records map[string][]domain.ResultRecord
}

func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{records: make(map[string][]domain.ResultRecord)}
}

func (r *StatsRecorder) Record(_ context.Context, owner string, rec domain.ResultRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	history := append([]domain.ResultRecord{rec}, r.records[owner]...)
	if len(history) > historyCap {
		history = history[:historyCap]
	}
	r.records[owner] = history
	return nil
}

func (r *StatsRecorder) History(_ context.Context, owner string, limit int) ([]domain.ResultRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	history := r.records[owner]
	if limit <= 0 || limit > len(history) {
		limit = len(history)
	}
	return append([]domain.ResultRecord(nil), history[:limit]...), nil
}
