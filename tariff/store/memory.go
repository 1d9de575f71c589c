// Package store provides in-memory collaborator implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/landed-cost/tariff"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	suspensions map[key][]tariff.SuspensionInterval
	history     []tariff.HistoryRecord
	ids         map[string]bool
}

type key struct {
	ImporterCode   string
	HS6ProductCode string
}

var (
	_ tariff.SuspensionDirectory = (*Memory)(nil)
	_ tariff.SuspensionWriter    = (*Memory)(nil)
	_ tariff.HistoryStore        = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		suspensions: make(map[key][]tariff.SuspensionInterval),
		ids:         make(map[string]bool),
	}
}

// SaveSuspension upserts a window by ID, keeping each key sorted by ValidFrom.
func (m *Memory) SaveSuspension(_ context.Context, s tariff.SuspensionInterval) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.ID != "" {
		m.removeLocked(s.ID)
	}

	k := key{ImporterCode: s.ImporterCode, HS6ProductCode: s.HS6ProductCode}
	list := m.suspensions[k]

	i := sort.Search(len(list), func(i int) bool {
		return list[i].ValidFrom.After(s.ValidFrom)
	})
	list = append(list, tariff.SuspensionInterval{})
	copy(list[i+1:], list[i:])
	list[i] = s
	m.suspensions[k] = list
	return nil
}

// DeleteSuspension removes a window by ID.
func (m *Memory) DeleteSuspension(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.removeLocked(id) {
		return tariff.ErrSuspensionNotFound
	}
	return nil
}

func (m *Memory) removeLocked(id string) bool {
	for k, list := range m.suspensions {
		for i := range list {
			if list[i].ID == id {
				m.suspensions[k] = append(list[:i], list[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Suspensions returns windows overlapping [startYear, endYear].
func (m *Memory) Suspensions(_ context.Context, importerCode, hs6ProductCode string, startYear, endYear int) ([]tariff.SuspensionInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []tariff.SuspensionInterval
	for _, s := range m.suspensions[key{ImporterCode: importerCode, HS6ProductCode: hs6ProductCode}] {
		if s.OverlapsRange(startYear, endYear) {
			out = append(out, s)
		}
	}
	return out, nil
}

// AppendQuote adds a history record. Append-only; duplicate IDs are ignored.
func (m *Memory) AppendQuote(_ context.Context, rec tariff.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID != "" && m.ids[rec.ID] {
		return nil
	}
	m.history = append(m.history, rec)
	if rec.ID != "" {
		m.ids[rec.ID] = true
	}
	return nil
}

// ListQuotes returns matching records, newest first.
func (m *Memory) ListQuotes(_ context.Context, filter tariff.HistoryFilter) ([]tariff.HistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []tariff.HistoryRecord{}
	for i := len(m.history) - 1; i >= 0; i-- {
		if !filter.Matches(m.history[i]) {
			continue
		}
		out = append(out, m.history[i])
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// Reset clears everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspensions = make(map[key][]tariff.SuspensionInterval)
	m.history = nil
	m.ids = make(map[string]bool)
	return nil
}
