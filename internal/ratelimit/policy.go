// Package ratelimit implements the sliding-window quota enforcement shared
// by the HTTP surface and the signaling hub.
package ratelimit

import "time"

// Policy names one of the closed set of rate-limit regimes.
type Policy string

// The closed enum of rate-limit policies. Each carries a fixed
// (max requests, window) pair — there is no per-principal override.
const (
	// SessionCreate gates POST /sessions, keyed on client IP.
	SessionCreate Policy = "SESSION_CREATE"

	// SessionJoin gates the hub's join_session method, keyed on connection handle.
	SessionJoin Policy = "SESSION_JOIN"

	// SignalingMessage gates every other inbound hub method, keyed on connection handle.
	SignalingMessage Policy = "SIGNALING_MESSAGE"

	// ICECandidate gates the ICE candidate forwarding method specifically.
	ICECandidate Policy = "ICE_CANDIDATE"
)

// policyLimits maps each policy to its (max requests, window) pair.
var policyLimits = map[Policy]struct {
	max    int
	window time.Duration
}{
	SessionCreate:    {max: 10, window: time.Hour},
	SessionJoin:      {max: 30, window: time.Minute},
	SignalingMessage: {max: 100, window: time.Second},
	ICECandidate:     {max: 200, window: time.Second},
}

// limitsFor returns the (max, window) pair for a policy and whether the
// policy is recognized.
func limitsFor(p Policy) (max int, window time.Duration, ok bool) {
	l, ok := policyLimits[p]
	if !ok {
		return 0, 0, false
	}
	return l.max, l.window, true
}
