// Package state holds per-chat conversation state for in-progress flows.
// State is ephemeral by design: it survives only as long as the flow that
// created it, and abandoned entries expire after a TTL so a user who walks
// away does not occupy the slot forever.
package state

import (
	"sync"
	"time"
)

// Flow tags for in-progress conversations.
const (
	FlowAwaitingUsername = "awaiting_username"
	FlowAwaitingReceipt  = "awaiting_receipt"
)

// Conversation is the per-chat flow state.
type Conversation struct {
	Flow string

	// Payment flow payload.
	RequestID     uint
	PlanID        int
	PanelUsername string
	// ClaimMessageID is the claim-summary message, deleted after the
	// receipt arrives.
	ClaimMessageID int

	// ActiveAccount is the panel username a multi-account chat selected as
	// the implicit target for status/payment actions. It survives flow
	// changes within the same entry.
	ActiveAccount string
}

// Store is the process-wide chat→conversation mapping. Implementations must
// be safe for concurrent use; semantics are last-writer-wins per chat.
type Store interface {
	Get(chatID int64) (Conversation, bool)
	Set(chatID int64, conv Conversation)
	Clear(chatID int64)
}

type entry struct {
	conv     Conversation
	deadline time.Time
}

// MemoryStore is the single-process implementation. Entries expire ttl after
// their last write; expired entries are swept lazily on access and by Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[int64]entry
	ttl     time.Duration
}

// NewMemoryStore creates a store. ttl <= 0 disables expiry.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]entry),
		ttl:     ttl,
	}
}

func (s *MemoryStore) Get(chatID int64) (Conversation, bool) {
	s.mu.RLock()
	e, ok := s.entries[chatID]
	s.mu.RUnlock()
	if !ok {
		return Conversation{}, false
	}
	if s.expired(e) {
		s.Clear(chatID)
		return Conversation{}, false
	}
	return e.conv, true
}

func (s *MemoryStore) Set(chatID int64, conv Conversation) {
	e := entry{conv: conv}
	if s.ttl > 0 {
		e.deadline = time.Now().Add(s.ttl)
	}
	s.mu.Lock()
	s.entries[chatID] = e
	s.mu.Unlock()
}

func (s *MemoryStore) Clear(chatID int64) {
	s.mu.Lock()
	delete(s.entries, chatID)
	s.mu.Unlock()
}

// Sweep drops expired entries and returns how many were removed. Called
// periodically from the cron scheduler.
func (s *MemoryStore) Sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if !e.deadline.IsZero() && e.deadline.Before(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

func (s *MemoryStore) expired(e entry) bool {
	return !e.deadline.IsZero() && e.deadline.Before(time.Now())
}
