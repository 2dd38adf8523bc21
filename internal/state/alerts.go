package state

import (
	"sync"

	"github.com/couchcryptid/place-state-hub/internal/domain"
)

// DefaultAlertRetention bounds the alert log when no retention is configured.
const DefaultAlertRetention = 200

// AlertStore is an append-only log of the most recent alerts.
type AlertStore struct {
	mu     sync.RWMutex
	limit  int
	alerts []domain.Alert
}

// NewAlertStore retains at most limit alerts; limit <= 0 selects
// DefaultAlertRetention.
func NewAlertStore(limit int) *AlertStore {
	if limit <= 0 {
		limit = DefaultAlertRetention
	}
	return &AlertStore{limit: limit}
}

// Append adds an alert, dropping the oldest beyond the limit.
func (s *AlertStore) Append(a domain.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	if over := len(s.alerts) - s.limit; over > 0 {
		s.alerts = append(s.alerts[:0:0], s.alerts[over:]...)
	}
}

// List returns the retained alerts in insertion order.
func (s *AlertStore) List() []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Recent returns up to n alerts, newest first.
func (s *AlertStore) Recent(n int) []domain.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n = min(max(n, 0), len(s.alerts))
	out := make([]domain.Alert, 0, n)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.alerts[i])
	}
	return out
}

// Len returns the number of retained alerts.
func (s *AlertStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}
