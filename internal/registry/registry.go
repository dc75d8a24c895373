// Package registry implements the session registry: session records, TTL
// regimes, peer membership, and host presence.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/johnkord/sendie/internal/config"
)

// sweepInterval is how often the background sweeper scans for expired sessions.
const sweepInterval = time.Minute

// MetricsReporter receives registry lifecycle observations. The production
// collector implements this; tests may supply a no-op.
type MetricsReporter interface {
	RecordSessionCreated()
	RecordSessionExpired(reason string)
	RecordPeerJoined()
	RecordPeerLeft()
	SetConnectedPairs(n float64)
}

type noopMetrics struct{}

func (noopMetrics) RecordSessionCreated()       {}
func (noopMetrics) RecordSessionExpired(string) {}
func (noopMetrics) RecordPeerJoined()           {}
func (noopMetrics) RecordPeerLeft()             {}
func (noopMetrics) SetConnectedPairs(float64)   {}

// Registry is the process-wide singleton holding every live session. Each
// session is independently locked; registry mutations on different
// sessions proceed without serializing against one another.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	regime  ttlRegime
	metrics MetricsReporter
	logger  *slog.Logger

	// now is overridable in tests; defaults to time.Now.
	now func() time.Time
}

// Option configures optional Registry parameters.
type Option func(*Registry)

// WithMetrics sets the MetricsReporter used to report registry activity.
func WithMetrics(mr MetricsReporter) Option {
	return func(r *Registry) {
		if mr != nil {
			r.metrics = mr
		}
	}
}

// New creates a Registry parameterized by the session TTL configuration.
func New(logger *slog.Logger, sessionCfg config.SessionConfig, opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		regime: ttlRegime{
			baseTTL:           sessionCfg.BaseTTL(),
			emptyTimeout:      sessionCfg.EmptyTimeout(),
			absHostConnected:  sessionCfg.AbsoluteMaxHostConnected(),
			absHostDisconnect: sessionCfg.AbsoluteMaxHostDisconnected(),
			hostGrace:         sessionCfg.HostGrace(),
		},
		metrics: noopMetrics{},
		logger:  logger.With(slog.String("component", "registry")),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// -------------------------------------------------------------------------
// Session CRUD
// -------------------------------------------------------------------------

// Create allocates a new session owned by creatorUserID. maxPeers must be
// in [2, 10].
func (r *Registry) Create(creatorUserID string, maxPeers int) (Snapshot, error) {
	if maxPeers < 2 || maxPeers > 10 {
		return Snapshot{}, ErrInvalidMaxPeers
	}

	id, err := newSessionID()
	if err != nil {
		return Snapshot{}, fmt.Errorf("create session: %w", err)
	}

	now := r.now()
	s := newSession(id, creatorUserID, maxPeers, now, r.regime)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.RecordSessionCreated()

	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	return snap, nil
}

// lookup returns the session for id without evaluating expiry.
func (r *Registry) lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	return s, ok
}

// evict removes id from the registry, recording the given expiry reason.
func (r *Registry) evict(id string, reason string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.metrics.RecordSessionExpired(reason)
}

// Get returns the session for id, evicting and reporting not-found if it
// has expired. This is a side-effecting query: active sessions are
// auto-extended on read, which keeps a session with live transfers alive
// across client polls.
func (r *Registry) Get(id string) (Snapshot, error) {
	s, ok := r.lookup(id)
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connectedPairs > 0 {
		s.extendLocked(now, r.regime)
		return s.snapshotLocked(), nil
	}

	effectiveMax := s.effectiveAbsoluteMaxLocked(r.regime)
	if now.After(effectiveMax) {
		r.evict(id, "absolute_max")
		return Snapshot{}, ErrSessionNotFound
	}

	if s.expiresAt.Before(now) {
		r.evict(id, "ttl")
		return Snapshot{}, ErrSessionNotFound
	}

	s.absoluteExpiresAt = effectiveMax

	return s.snapshotLocked(), nil
}

// -------------------------------------------------------------------------
// Peer Admission
// -------------------------------------------------------------------------

// AddPeer admits connectionHandle (optionally carrying userID) into
// session id. A peer admitted while the session has no other peers is
// granted the initiator role. The returned existing slice is the membership as
// it stood immediately before admission, captured in the same critical
// section, so concurrent joiners each see the other exactly once.
func (r *Registry) AddPeer(id, connectionHandle, userID string) (Peer, []Peer, error) {
	s, ok := r.lookup(id)
	if !ok {
		return Peer{}, nil, ErrSessionNotFound
	}

	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.After(s.effectiveAbsoluteMaxLocked(r.regime)) {
		r.evict(id, "absolute_max")
		return Peer{}, nil, ErrSessionNotFound
	}
	if s.connectedPairs == 0 && s.expiresAt.Before(now) {
		r.evict(id, "ttl")
		return Peer{}, nil, ErrSessionNotFound
	}

	if len(s.peers) >= s.maxPeers {
		return Peer{}, nil, ErrSessionFull
	}
	if s.isLocked && len(s.peers) > 0 {
		return Peer{}, nil, ErrSessionLocked
	}

	existing := s.peersLocked()

	peer := &Peer{
		ConnectionHandle: connectionHandle,
		SessionID:        id,
		IsInitiatorRole:  len(s.peers) == 0,
		UserID:           userID,
	}

	s.peers = append(s.peers, peer)
	s.peersByHandle[connectionHandle] = peer

	s.extendLocked(now, r.regime)
	s.clearEmptyLocked(now, r.regime)

	if userID != "" && userID == s.creatorUserID {
		s.updateHostPresenceLocked(userID, true, now, r.regime)
	}

	r.metrics.RecordPeerJoined()

	return *peer, existing, nil
}

// RemovePeer tears down connectionHandle's membership in session id,
// updating host presence and empty-session bookkeeping as needed.
func (r *Registry) RemovePeer(id, connectionHandle string) {
	s, ok := r.lookup(id)
	if !ok {
		return
	}

	now := r.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	peer, ok := s.peersByHandle[connectionHandle]
	if !ok {
		return
	}

	wasHost := peer.UserID != "" && peer.UserID == s.creatorUserID

	delete(s.peersByHandle, connectionHandle)
	for i, p := range s.peers {
		if p.ConnectionHandle == connectionHandle {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}

	r.metrics.RecordPeerLeft()

	if wasHost {
		s.updateHostPresenceLocked(peer.UserID, false, now, r.regime)
	}

	if len(s.peers) == 0 {
		s.markEmptyLocked(now, r.regime)
	}
}

// PeersIn returns the current peer membership of session id, in join order.
func (r *Registry) PeersIn(id string) ([]Peer, error) {
	s, ok := r.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.peersLocked(), nil
}

// PeerByHandle returns the peer and owning session ID for connectionHandle
// across the whole registry.
func (r *Registry) PeerByHandle(connectionHandle string) (Peer, bool) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.mu.Lock()
		peer, ok := s.peersByHandle[connectionHandle]
		var result Peer
		if ok {
			result = *peer
		}
		s.mu.Unlock()
		if ok {
			return result, true
		}
	}

	return Peer{}, false
}

// -------------------------------------------------------------------------
// TTL Mutators
// -------------------------------------------------------------------------

// Extend refreshes session id's soft expiry under the current regime.
func (r *Registry) Extend(id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.extendLocked(r.now(), r.regime)
	return nil
}

// MarkEmpty shortens session id's soft expiry to the empty timeout.
func (r *Registry) MarkEmpty(id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.markEmptyLocked(r.now(), r.regime)
	return nil
}

// ClearEmpty resets session id's soft expiry to a full base TTL window.
func (r *Registry) ClearEmpty(id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.clearEmptyLocked(r.now(), r.regime)
	return nil
}

// IncConnectedPairs records a new established P2P link for session id.
func (r *Registry) IncConnectedPairs(id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	s.incConnectedPairsLocked(r.now(), r.regime)
	pairs := s.connectedPairs
	s.mu.Unlock()

	r.updateConnectedPairsMetric(pairs)

	return nil
}

// DecConnectedPairs records a torn-down P2P link for session id.
func (r *Registry) DecConnectedPairs(id string) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	s.decConnectedPairsLocked()
	pairs := s.connectedPairs
	s.mu.Unlock()

	r.updateConnectedPairsMetric(pairs)

	return nil
}

// updateConnectedPairsMetric recomputes the total connected-pairs gauge
// across every live session.
func (r *Registry) updateConnectedPairsMetric(_ int) {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	total := 0
	for _, s := range sessions {
		s.mu.Lock()
		total += s.connectedPairs
		s.mu.Unlock()
	}

	r.metrics.SetConnectedPairs(float64(total))
}

// -------------------------------------------------------------------------
// Host Authority
// -------------------------------------------------------------------------

// IsCreator reports whether userID matches session id's creator.
func (r *Registry) IsCreator(id, userID string) bool {
	s, ok := r.lookup(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return userID != "" && userID == s.creatorUserID
}

// Lock sets is_locked if userID is session id's creator. Returns true on
// authorized success.
func (r *Registry) Lock(id, userID string) bool {
	return r.setCreatorFlag(id, userID, func(s *Session) { s.isLocked = true })
}

// Unlock clears is_locked if userID is session id's creator.
func (r *Registry) Unlock(id, userID string) bool {
	return r.setCreatorFlag(id, userID, func(s *Session) { s.isLocked = false })
}

// EnableHostOnlySending sets is_host_only_sending if userID is session
// id's creator.
func (r *Registry) EnableHostOnlySending(id, userID string) bool {
	return r.setCreatorFlag(id, userID, func(s *Session) { s.isHostOnlySending = true })
}

// DisableHostOnlySending clears is_host_only_sending if userID is session
// id's creator.
func (r *Registry) DisableHostOnlySending(id, userID string) bool {
	return r.setCreatorFlag(id, userID, func(s *Session) { s.isHostOnlySending = false })
}

// setCreatorFlag verifies creator authority under the session lock, then
// applies mutate. Shared implementation for the four host-authority toggles.
func (r *Registry) setCreatorFlag(id, userID string, mutate func(*Session)) bool {
	s, ok := r.lookup(id)
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if userID == "" || userID != s.creatorUserID {
		return false
	}

	mutate(s)
	return true
}

// HostConnectionHandle returns the connection handle belonging to session
// id's creator, if currently connected.
func (r *Registry) HostConnectionHandle(id string) (string, bool) {
	s, ok := r.lookup(id)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.peers {
		if p.UserID != "" && p.UserID == s.creatorUserID {
			return p.ConnectionHandle, true
		}
	}
	return "", false
}

// UpdateHostPresence records a host connect/disconnect transition for
// session id. No-op if userID is not the session's creator.
func (r *Registry) UpdateHostPresence(id, _ string, userID string, connecting bool) error {
	s, ok := r.lookup(id)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.updateHostPresenceLocked(userID, connecting, r.now(), r.regime)
	return nil
}

// -------------------------------------------------------------------------
// Background Sweeper
// -------------------------------------------------------------------------

// Run starts the background sweeper, removing expired sessions once a
// minute. Blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep removes every session whose expiredLocked check returns true.
func (r *Registry) sweep() {
	now := r.now()

	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		candidates = append(candidates, s)
	}
	r.mu.RUnlock()

	removed := 0
	for _, s := range candidates {
		s.mu.Lock()
		expired := s.expiredLocked(now, r.regime)
		reason := "ttl"
		if now.After(s.effectiveAbsoluteMaxLocked(r.regime)) {
			reason = "absolute_max"
		}
		id := s.id
		s.mu.Unlock()

		if expired {
			r.evict(id, reason)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Debug("swept expired sessions", slog.Int("removed", removed))
	}
}

// Len reports the current number of sessions held by the registry.
// Test/diagnostic use.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// List returns a snapshot of every live session, for the admin listing
// surface. The returned slice holds independent copies; no references to
// mutable session state are held past the call.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.snapshotLocked())
		s.mu.Unlock()
	}
	return out
}
