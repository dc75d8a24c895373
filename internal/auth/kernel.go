package auth

import "github.com/johnkord/sendie/internal/allowlist"

// Kernel evaluates the two access policies against a Principal:
// AllowedUser and Admin. It holds no state of its own beyond a reference
// to the allow-list.
type Kernel struct {
	allowlist *allowlist.AllowList
}

// NewKernel creates a Kernel backed by allow.
func NewKernel(allow *allowlist.AllowList) *Kernel {
	return &Kernel{allowlist: allow}
}

// IsAllowedUser reports whether p is authenticated and present in the
// allow-list.
func (k *Kernel) IsAllowedUser(p Principal) bool {
	return p.Authenticated && k.allowlist.IsAllowed(p.UserID)
}

// IsAdmin reports whether p is authenticated and a member of the frozen
// admin set.
func (k *Kernel) IsAdmin(p Principal) bool {
	return p.Authenticated && k.allowlist.IsAdmin(p.UserID)
}
