package vault

import (
	"time"

	"moltguard/internal/pii"
)

// VaultEntry is one persisted placeholder <-> original-value mapping
// (spec §3). (session_id, token) and (session_id, original_value) are each
// unique within the vault.
type VaultEntry struct {
	Token          string       `json:"token"`
	OriginalValue  string       `json:"original_value"`
	Category       pii.Category `json:"category"`
	SessionID      string       `json:"session_id"`
	CreatedAt      time.Time    `json:"created_at"`
	LastAccessedAt time.Time    `json:"last_accessed_at"`
	ExpiresAt      time.Time    `json:"expires_at"`
}

func (e *VaultEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !e.ExpiresAt.After(now)
}
