// Package allowlist implements the admin set and runtime allow-list with
// its durable JSON snapshot.
package allowlist

import "time"

// configSeededBy is the added_by sentinel for admin and config-seeded
// entries. These are never persisted — they are rehydrated from
// configuration on every boot.
const configSeededBy = "config"

// AllowedUser is one membership record in the allow-list.
type AllowedUser struct {
	// UserID is the opaque identifier from the upstream identity provider.
	UserID string `json:"discord_user_id"`

	// AddedAt is when the entry was created.
	AddedAt time.Time `json:"added_at"`

	// AddedBy is either an admin's user ID or configSeededBy for entries
	// seeded from configuration at boot.
	AddedBy string `json:"added_by"`
}
