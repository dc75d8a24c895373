package registry

import (
	"sync"
	"time"
)

// Peer is a membership record within one session.
type Peer struct {
	// ConnectionHandle is the hub channel identifier for this peer.
	ConnectionHandle string

	// SessionID is the session this peer belongs to.
	SessionID string

	// IsInitiatorRole is true for a peer admitted while the session had
	// no other peers. It is a role tag for mesh offer tie-breaking only
	// and confers no host authority.
	IsInitiatorRole bool

	// UserID is the authenticated claim, or "" for anonymous joiners.
	UserID string
}

// Session is the central entity tracked by the registry. Every mutating
// accessor below assumes the caller holds mu; Registry methods take the
// lock before calling into these.
type Session struct {
	mu sync.Mutex

	id        string
	createdAt time.Time

	expiresAt         time.Time
	absoluteExpiresAt time.Time
	emptySince        *time.Time

	maxPeers int

	// peers preserves insertion order; peersByHandle indexes the same
	// records for O(1) lookup. Both are guarded by mu.
	peers         []*Peer
	peersByHandle map[string]*Peer

	connectedPairs int

	creatorUserID string
	hostConnected bool
	hostLastSeen  *time.Time

	isLocked          bool
	isHostOnlySending bool
}

func newSession(id string, creatorUserID string, maxPeers int, now time.Time, regime ttlRegime) *Session {
	s := &Session{
		id:            id,
		createdAt:     now,
		maxPeers:      maxPeers,
		peers:         make([]*Peer, 0, maxPeers),
		peersByHandle: make(map[string]*Peer),
		creatorUserID: creatorUserID,
	}
	s.absoluteExpiresAt = s.effectiveAbsoluteMaxLocked(regime)
	s.expiresAt = minTime(now.Add(regime.baseTTL), s.absoluteExpiresAt)
	return s
}

// Snapshot is a read-only, reference-free view of a Session at a point in
// time, safe to hand to callers outside the session's lock.
type Snapshot struct {
	ID                string
	CreatedAt         time.Time
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
	EmptySince        *time.Time
	MaxPeers          int
	PeerCount         int
	ConnectedPairs    int
	CreatorUserID     string
	HostConnected     bool
	HostLastSeen      *time.Time
	IsLocked          bool
	IsHostOnlySending bool
}

// snapshotLocked builds a Snapshot. Must be called with mu held.
func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:                s.id,
		CreatedAt:         s.createdAt,
		ExpiresAt:         s.expiresAt,
		AbsoluteExpiresAt: s.absoluteExpiresAt,
		EmptySince:        s.emptySince,
		MaxPeers:          s.maxPeers,
		PeerCount:         len(s.peers),
		ConnectedPairs:    s.connectedPairs,
		CreatorUserID:     s.creatorUserID,
		HostConnected:     s.hostConnected,
		HostLastSeen:      s.hostLastSeen,
		IsLocked:          s.isLocked,
		IsHostOnlySending: s.isHostOnlySending,
	}
}

// peersLocked returns a copy of the current peer list. Must be called
// with mu held.
func (s *Session) peersLocked() []Peer {
	out := make([]Peer, len(s.peers))
	for i, p := range s.peers {
		out[i] = *p
	}
	return out
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
