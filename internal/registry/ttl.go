package registry

import "time"

// ttlRegime holds the five fixed durations that parameterize the TTL
// state machine. Values come from config.SessionConfig.
type ttlRegime struct {
	baseTTL           time.Duration
	emptyTimeout      time.Duration
	absHostConnected  time.Duration
	absHostDisconnect time.Duration
	hostGrace         time.Duration
}

// effectiveAbsoluteMaxLocked is a pure function of host state, evaluated
// fresh on every access rather than cached. Must be called with s.mu held.
func (s *Session) effectiveAbsoluteMaxLocked(regime ttlRegime) time.Time {
	switch {
	case s.hostConnected:
		return s.createdAt.Add(regime.absHostConnected)
	case s.hostLastSeen != nil:
		graceBound := s.hostLastSeen.Add(regime.hostGrace)
		floorBound := s.createdAt.Add(regime.absHostDisconnect)
		if graceBound.After(floorBound) {
			return graceBound
		}
		return floorBound
	default:
		return s.createdAt.Add(regime.absHostDisconnect)
	}
}

// extendLocked sets expires_at to min(now + base_ttl, effective absolute
// max) and clears empty_since. Must be called with s.mu held.
func (s *Session) extendLocked(now time.Time, regime ttlRegime) {
	s.absoluteExpiresAt = s.effectiveAbsoluteMaxLocked(regime)
	s.expiresAt = minTime(now.Add(regime.baseTTL), s.absoluteExpiresAt)
	s.emptySince = nil
}

// markEmptyLocked shortens expires_at to the empty timeout, but only if
// the session is not already marked empty and has no active pairs. Must
// be called with s.mu held.
func (s *Session) markEmptyLocked(now time.Time, regime ttlRegime) {
	if s.emptySince != nil || s.connectedPairs != 0 {
		return
	}
	candidate := now.Add(regime.emptyTimeout)
	s.expiresAt = minTime(candidate, s.expiresAt)
	t := now
	s.emptySince = &t
}

// clearEmptyLocked resets expires_at to a full base_ttl window if the
// session was marked empty. Must be called with s.mu held.
func (s *Session) clearEmptyLocked(now time.Time, regime ttlRegime) {
	if s.emptySince == nil {
		return
	}
	s.absoluteExpiresAt = s.effectiveAbsoluteMaxLocked(regime)
	s.expiresAt = minTime(now.Add(regime.baseTTL), s.absoluteExpiresAt)
	s.emptySince = nil
}

// incConnectedPairsLocked bumps the pair counter, clears empty_since, and
// extends the session. Must be called with s.mu held.
func (s *Session) incConnectedPairsLocked(now time.Time, regime ttlRegime) {
	s.connectedPairs++
	s.extendLocked(now, regime)
}

// decConnectedPairsLocked decrements the pair counter, floored at zero,
// without touching any timestamp. Must be called with s.mu held.
func (s *Session) decConnectedPairsLocked() {
	if s.connectedPairs > 0 {
		s.connectedPairs--
	}
}

// updateHostPresenceLocked records a host connect/disconnect transition
// and moves the absolute bound to the matching regime. Ignored if userID
// does not match the session's creator. Must be called with s.mu held.
func (s *Session) updateHostPresenceLocked(userID string, connecting bool, now time.Time, regime ttlRegime) {
	if userID != s.creatorUserID {
		return
	}

	t := now
	s.hostLastSeen = &t

	if connecting {
		s.hostConnected = true
		s.absoluteExpiresAt = s.effectiveAbsoluteMaxLocked(regime)
		s.expiresAt = minTime(now.Add(regime.baseTTL), s.absoluteExpiresAt)
		return
	}

	s.hostConnected = false
	s.absoluteExpiresAt = s.effectiveAbsoluteMaxLocked(regime)
}

// expiredLocked reports whether the session should be reaped right now:
// either it has no active pairs and its soft expiry has passed, or its
// hard bound has passed regardless of active pairs. Must be called with
// s.mu held.
func (s *Session) expiredLocked(now time.Time, regime ttlRegime) bool {
	effectiveMax := s.effectiveAbsoluteMaxLocked(regime)
	if now.After(effectiveMax) {
		return true
	}
	return s.connectedPairs == 0 && s.expiresAt.Before(now)
}
