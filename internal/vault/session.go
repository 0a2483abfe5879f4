package vault

import (
	"time"

	"moltguard/internal/pii"
)

// SessionState is one session's in-memory projection (spec §3): an ordered
// mapping table plus per-category counters that never decrease. It
// implements MappingTable directly; callers must hold the owning Vault's
// lock while mutating it.
type SessionState struct {
	SessionID string
	TTL       time.Duration
	CreatedAt time.Time

	order    []string
	entries  map[string]*VaultEntry
	reverse  map[string]string // original_value -> token
	counters map[pii.Category]uint32
}

func newSessionState(id string, ttl time.Duration) *SessionState {
	return &SessionState{
		SessionID: id,
		TTL:       ttl,
		CreatedAt: time.Now(),
		entries:   make(map[string]*VaultEntry),
		reverse:   make(map[string]string),
		counters:  make(map[pii.Category]uint32),
	}
}

// Set implements MappingTable.
func (s *SessionState) Set(token, original string) {
	if _, exists := s.entries[token]; !exists {
		s.order = append(s.order, token)
	}
	now := time.Now()
	var expiresAt time.Time
	if s.TTL > 0 {
		expiresAt = now.Add(s.TTL)
	}
	s.entries[token] = &VaultEntry{
		Token:          token,
		OriginalValue:  original,
		SessionID:      s.SessionID,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      expiresAt,
	}
	s.reverse[original] = token
}

// Get implements MappingTable.
func (s *SessionState) Get(token string) (string, bool) {
	e, ok := s.entries[token]
	if !ok {
		return "", false
	}
	return e.OriginalValue, true
}

// Has implements MappingTable.
func (s *SessionState) Has(token string) bool {
	_, ok := s.entries[token]
	return ok
}

// Delete implements MappingTable.
func (s *SessionState) Delete(token string) {
	e, ok := s.entries[token]
	if !ok {
		return
	}
	delete(s.entries, token)
	delete(s.reverse, e.OriginalValue)
	for i, k := range s.order {
		if k == token {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Iterate implements MappingTable, visiting tokens in allocation order.
func (s *SessionState) Iterate(fn func(token, original string) bool) {
	for _, token := range s.order {
		e, ok := s.entries[token]
		if !ok {
			continue
		}
		if !fn(token, e.OriginalValue) {
			return
		}
	}
}

// Mapping returns s as a MappingTable, for passing to the Sanitizer/Restorer.
func (s *SessionState) Mapping() MappingTable { return s }

// Counter returns the current counter value for cat (0 if never allocated).
func (s *SessionState) Counter(cat pii.Category) uint32 { return s.counters[cat] }

// Counters returns a snapshot copy of every category's counter.
func (s *SessionState) Counters() map[pii.Category]uint32 {
	out := make(map[pii.Category]uint32, len(s.counters))
	for k, v := range s.counters {
		out[k] = v
	}
	return out
}

func (s *SessionState) tokenFor(original string) (string, bool) {
	t, ok := s.reverse[original]
	return t, ok
}

func (s *SessionState) entryCount() int { return len(s.entries) }
