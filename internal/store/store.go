// Package store provides storage backends for LangRelay.
//
// It persists per-sender language preferences and an inbound message journal
// (audit trail of accepted webhook deliveries). An in-memory store backs
// tests; SQLite and PostgreSQL back deployments.
package store

import (
	"strings"
	"sync"
	"time"

	"github.com/langrelay/langrelay/internal/models"
)

// JournalEntry is one audit record of an accepted inbound message.
type JournalEntry struct {
	MessageID   string     `json:"message_id"`
	Sender      string     `json:"sender"`
	ReceivedAt  time.Time  `json:"received_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// Store is the durable preference and journal interface.
//
// GetLanguages returns an empty slice for an unseen sender; empty is the
// onboarding sentinel, not an error. All mutating preference operations are
// durable before they return success: a failed write is reported as an error
// wrapping models.ErrPersistence, never as phantom success.
type Store interface {
	GetLanguages(sender string) ([]string, error)
	// SetLanguages atomically replaces the stored sequence, deduplicating the
	// input while preserving first-occurrence order.
	SetLanguages(sender string, codes []string) error
	// AddLanguage appends code if absent; a no-op when already present.
	AddLanguage(sender, code string) error
	// Clear empties the stored sequence for sender and resets the romaji
	// toggle.
	Clear(sender string) error

	// GetRomaji reports whether sender wants Japanese translations rendered
	// in romaji alongside the original script. Defaults to false for unseen
	// senders.
	GetRomaji(sender string) (bool, error)
	// SetRomaji durably records the romaji toggle for sender.
	SetRomaji(sender string, enabled bool) error

	// RecordInbound journals an accepted message for diagnosis. Journal writes
	// are best-effort from the caller's point of view; novelty decisions stay
	// with the in-memory deduplicator.
	RecordInbound(messageID, sender string) error
	// MarkProcessed stamps a journaled message as fully handled.
	MarkProcessed(messageID string) error
	// PurgeJournalBefore removes journal entries received before cutoff and
	// returns the number removed.
	PurgeJournalBefore(cutoff time.Time) (int64, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite file path as the store DSN.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string as the store DSN.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL-style DSNs and "sqlite"
// for anything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// dedupeCodes removes duplicates while preserving first-occurrence order.
func dedupeCodes(codes []string) []string {
	out := make([]string, 0, len(codes))
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// InMemoryStore is a mutex-guarded map-backed store used in tests and as a
// fallback when no DSN is configured.
type InMemoryStore struct {
	mu      sync.RWMutex
	prefs   map[string][]string
	romaji  map[string]bool
	journal map[string]*JournalEntry
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		prefs:   make(map[string][]string),
		romaji:  make(map[string]bool),
		journal: make(map[string]*JournalEntry),
	}
}

func (s *InMemoryStore) GetLanguages(sender string) ([]string, error) {
	if sender == "" {
		return nil, models.ErrEmptySender
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := s.prefs[sender]
	out := make([]string, len(codes))
	copy(out, codes)
	return out, nil
}

func (s *InMemoryStore) SetLanguages(sender string, codes []string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs[sender] = dedupeCodes(codes)
	return nil
}

func (s *InMemoryStore) AddLanguage(sender, code string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.prefs[sender] {
		if c == code {
			return nil
		}
	}
	s.prefs[sender] = append(s.prefs[sender], code)
	return nil
}

func (s *InMemoryStore) Clear(sender string) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.prefs, sender)
	delete(s.romaji, sender)
	return nil
}

func (s *InMemoryStore) GetRomaji(sender string) (bool, error) {
	if sender == "" {
		return false, models.ErrEmptySender
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.romaji[sender], nil
}

func (s *InMemoryStore) SetRomaji(sender string, enabled bool) error {
	if sender == "" {
		return models.ErrEmptySender
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.romaji[sender] = enabled
	return nil
}

func (s *InMemoryStore) RecordInbound(messageID, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.journal[messageID]; ok {
		return nil
	}
	s.journal[messageID] = &JournalEntry{MessageID: messageID, Sender: sender, ReceivedAt: time.Now()}
	return nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.journal[messageID]; ok {
		now := time.Now()
		e.ProcessedAt = &now
	}
	return nil
}

func (s *InMemoryStore) PurgeJournalBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, e := range s.journal {
		if e.ReceivedAt.Before(cutoff) {
			delete(s.journal, id)
			removed++
		}
	}
	return removed, nil
}

func (s *InMemoryStore) Close() error { return nil }
