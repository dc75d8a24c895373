package allowlist

import (
	"log/slog"
	"sync"
	"time"
)

// MetricsReporter receives allow-list size observations. The production
// collector implements this; tests may supply a no-op.
type MetricsReporter interface {
	SetAllowListSize(n float64)
}

type noopMetrics struct{}

func (noopMetrics) SetAllowListSize(float64) {}

// AllowList is the process-wide singleton tracking admin and allowed
// users. The admin set is frozen at construction; non-admin membership
// may be mutated at runtime and is durably persisted.
type AllowList struct {
	mu sync.RWMutex

	// admins is frozen at boot; never mutated afterward.
	admins map[string]struct{}

	// users holds every allowed user, including admins and config-seeded
	// entries, keyed by user ID.
	users map[string]AllowedUser

	store   *store
	logger  *slog.Logger
	metrics MetricsReporter

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// Option configures optional AllowList parameters.
type Option func(*AllowList)

// WithMetrics sets the MetricsReporter used to report allow-list size.
func WithMetrics(mr MetricsReporter) Option {
	return func(a *AllowList) {
		if mr != nil {
			a.metrics = mr
		}
	}
}

// Load constructs the frozen admin set and initial allow-list: the union
// of configured admins, configured initial users, and admins marked
// added_by="config", plus any durable snapshot entries found in
// dataDirectory. Persistence errors are logged and treated as an empty
// snapshot; in-memory state is authoritative at runtime.
func Load(logger *slog.Logger, dataDirectory string, admins, initialAllowList []string, opts ...Option) *AllowList {
	a := &AllowList{
		admins:  make(map[string]struct{}, len(admins)),
		users:   make(map[string]AllowedUser),
		store:   newStore(dataDirectory),
		logger:  logger.With(slog.String("component", "allowlist")),
		now:     time.Now,
		metrics: noopMetrics{},
	}

	for _, opt := range opts {
		opt(a)
	}

	now := a.now()

	for _, id := range admins {
		a.admins[id] = struct{}{}
		a.users[id] = AllowedUser{UserID: id, AddedAt: now, AddedBy: configSeededBy}
	}

	for _, id := range initialAllowList {
		if _, exists := a.users[id]; exists {
			continue
		}
		a.users[id] = AllowedUser{UserID: id, AddedAt: now, AddedBy: configSeededBy}
	}

	persisted, err := a.store.load()
	if err != nil {
		a.logger.Warn("failed to load allow-list snapshot, starting from config only",
			slog.String("error", err.Error()))
	}

	for _, u := range persisted {
		if _, exists := a.users[u.UserID]; exists {
			continue
		}
		a.users[u.UserID] = u
	}

	a.metrics.SetAllowListSize(float64(len(a.users)))

	return a
}

// IsAllowed reports whether userID is present in the allow-list.
func (a *AllowList) IsAllowed(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.users[userID]
	return ok
}

// IsAdmin reports whether userID is a member of the frozen admin set.
func (a *AllowList) IsAdmin(userID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	_, ok := a.admins[userID]
	return ok
}

// Add grants userID access, attributing the change to byAdminID. A no-op
// if the user already exists. Returns false if byAdminID is not an admin.
func (a *AllowList) Add(userID, byAdminID string) bool {
	if !a.IsAdmin(byAdminID) {
		a.logger.Info("rejected allow-list add from non-admin",
			slog.String("target", userID), slog.String("caller", byAdminID))
		return false
	}

	a.mu.Lock()
	if _, exists := a.users[userID]; exists {
		a.mu.Unlock()
		return true
	}

	a.users[userID] = AllowedUser{UserID: userID, AddedAt: a.now(), AddedBy: byAdminID}
	snapshot := a.persistableLocked()
	size := len(a.users)
	a.mu.Unlock()

	a.metrics.SetAllowListSize(float64(size))
	a.persist(snapshot)

	return true
}

// Remove revokes userID's access, attributing the change to byAdminID.
// Refuses to remove admins (always returns false for admin targets).
// Returns false if byAdminID is not an admin or userID is not present.
func (a *AllowList) Remove(userID, byAdminID string) bool {
	if !a.IsAdmin(byAdminID) {
		a.logger.Info("rejected allow-list remove from non-admin",
			slog.String("target", userID), slog.String("caller", byAdminID))
		return false
	}

	if a.IsAdmin(userID) {
		a.logger.Info("rejected attempt to remove admin from allow-list",
			slog.String("target", userID), slog.String("caller", byAdminID))
		return false
	}

	a.mu.Lock()
	if _, exists := a.users[userID]; !exists {
		a.mu.Unlock()
		return false
	}

	delete(a.users, userID)
	snapshot := a.persistableLocked()
	size := len(a.users)
	a.mu.Unlock()

	a.metrics.SetAllowListSize(float64(size))
	a.persist(snapshot)

	return true
}

// ListUsers returns every allowed user, admins included.
func (a *AllowList) ListUsers() []AllowedUser {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]AllowedUser, 0, len(a.users))
	for _, u := range a.users {
		out = append(out, u)
	}
	return out
}

// ReloadConfigSeeded merges a freshly re-read configuration's admins and
// initial allow-list into the live set on SIGHUP: newly named admins and
// users are added without tearing down in-flight state. Existing entries,
// admin or not, are never removed or demoted by a reload; only runtime
// Remove calls revoke access.
func (a *AllowList) ReloadConfigSeeded(admins, initialAllowList []string) {
	a.mu.Lock()

	now := a.now()
	added := 0

	for _, id := range admins {
		if _, exists := a.admins[id]; !exists {
			a.admins[id] = struct{}{}
			added++
		}
		if _, exists := a.users[id]; !exists {
			a.users[id] = AllowedUser{UserID: id, AddedAt: now, AddedBy: configSeededBy}
		}
	}

	for _, id := range initialAllowList {
		if _, exists := a.users[id]; exists {
			continue
		}
		a.users[id] = AllowedUser{UserID: id, AddedAt: now, AddedBy: configSeededBy}
		added++
	}

	size := len(a.users)
	a.mu.Unlock()

	if added > 0 {
		a.metrics.SetAllowListSize(float64(size))
		a.logger.Info("allow-list reloaded from config", slog.Int("new_entries", added))
	}
}

// ListAdmins returns the frozen admin set's user IDs.
func (a *AllowList) ListAdmins() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]string, 0, len(a.admins))
	for id := range a.admins {
		out = append(out, id)
	}
	return out
}

// persistableLocked returns the subset of users that should be written to
// the durable snapshot (added_by != "config"). Must be called with a.mu held.
func (a *AllowList) persistableLocked() []AllowedUser {
	out := make([]AllowedUser, 0, len(a.users))
	for _, u := range a.users {
		if u.AddedBy == configSeededBy {
			continue
		}
		out = append(out, u)
	}
	return out
}

// persist writes the snapshot, logging and swallowing any error —
// persistence failure never aborts the in-memory mutation.
func (a *AllowList) persist(users []AllowedUser) {
	if err := a.store.save(users); err != nil {
		a.logger.Warn("failed to persist allow-list snapshot", slog.String("error", err.Error()))
	}
}
