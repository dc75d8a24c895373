package hub

import (
	"errors"
	"log/slog"

	"github.com/johnkord/sendie/internal/registry"
)

// handleJoinSession admits the caller into a session, returning its
// initiator role, the existing peer handles (the joiner offers to each of
// them; pre-existing peers wait, which is what avoids glare), and the
// session's current host/lock state. A peer admitted into an empty
// session becomes the initiator.
func (h *Hub) handleJoinSession(c *conn, f Frame) (any, string) {
	var args joinSessionArgs
	if err := unmarshalArgs(f, &args); err != nil || args.SessionID == "" {
		return nil, "invalid join_session arguments"
	}

	if _, _, state := c.snapshot(); state != stateNotJoined {
		return nil, "connection has already joined a session"
	}

	// The session ID is the sole join capability; joiners are not checked
	// against the allow-list. A user-ID claim only matters for host
	// authority.
	userID := c.getUserID()

	c.setState(stateJoining)

	peer, existingPeers, err := h.registry.AddPeer(args.SessionID, c.handle, userID)
	if err != nil {
		c.setState(stateNotJoined)
		return nil, mapRegistryError(err)
	}
	existingHandles := make([]string, 0, len(existingPeers))
	for _, p := range existingPeers {
		existingHandles = append(existingHandles, p.ConnectionHandle)
	}

	c.setSession(args.SessionID, stateJoined)

	snapshot, err := h.registry.Get(args.SessionID)
	if err != nil {
		return nil, mapRegistryError(err)
	}

	hostHandle, _ := h.registry.HostConnectionHandle(args.SessionID)

	h.broadcastToOthers(args.SessionID, c.handle, Frame{
		Event: EventPeerJoined,
		Args:  mustMarshal(peerHandleEvent{Handle: c.handle}),
	})

	return joinSessionResult{
		Success:           true,
		IsInitiatorRole:   peer.IsInitiatorRole,
		ExistingPeers:     existingHandles,
		IsHost:            userID != "" && h.registry.IsCreator(args.SessionID, userID),
		HostConnection:    hostHandle,
		IsLocked:          snapshot.IsLocked,
		IsHostOnlySending: snapshot.IsHostOnlySending,
	}, ""
}

// handleLeaveSession is the explicit counterpart to connection teardown.
func (h *Hub) handleLeaveSession(c *conn, f Frame) (any, string) {
	sessionID, userID, state := c.snapshot()
	if state != stateJoined {
		return successResult{Success: true}, ""
	}

	h.leaveSession(c, sessionID, userID)
	return successResult{Success: true}, ""
}

// leaveSession removes c's membership from sessionID and notifies the
// remaining peers. Shared by the explicit leave_session call and
// connection teardown.
func (h *Hub) leaveSession(c *conn, sessionID, userID string) {
	h.registry.RemovePeer(sessionID, c.handle)
	c.setState(stateDisconnected)

	h.broadcastToOthers(sessionID, c.handle, Frame{
		Event: EventPeerLeft,
		Args:  mustMarshal(peerHandleEvent{Handle: c.handle}),
	})
}

// relayToTarget is the shared shape behind send_offer_to, send_answer_to,
// send_ice_candidate_to, and send_public_key_to: verify the caller has
// joined, verify the target shares the same session, then enqueue the
// translated event on the target's connection. is_host_only_sending is
// purely advisory: the hub never gates routing on it, only broadcasts its
// state change.
//
// A caller/target session mismatch is dropped with a logged warning
// rather than surfaced as an error to the client; delivered reports true
// when the event was handed to the target's send queue, which itself
// drops frames when full.
func (h *Hub) relayToTarget(c *conn, targetHandle string, event Frame) (errMsg string, delivered bool) {
	sessionID, _, state := c.snapshot()
	if state != stateJoined {
		return "connection has not joined a session", false
	}

	target, ok := h.connByHandle(targetHandle)
	if !ok {
		h.logger.Warn("signaling target not found", slog.String("target_handle", targetHandle))
		return "", false
	}

	targetSession, _, targetState := target.snapshot()
	if targetState != stateJoined || targetSession != sessionID {
		h.logger.Warn("signaling target not in caller's session",
			slog.String("caller_handle", c.handle), slog.String("target_handle", targetHandle))
		return "", false
	}

	target.enqueue(event)
	return "", true
}

func (h *Hub) handleSendOfferTo(c *conn, f Frame) (any, string) {
	var args sendOfferArgs
	if err := unmarshalArgs(f, &args); err != nil || args.TargetHandle == "" {
		return nil, "invalid send_offer_to arguments"
	}

	event := Frame{Event: EventOffer, Args: mustMarshal(offerEvent{From: c.handle, SDP: args.SDP})}
	errMsg, delivered := h.relayToTarget(c, args.TargetHandle, event)
	if errMsg != "" {
		return nil, errMsg
	}
	return successResult{Success: delivered}, ""
}

func (h *Hub) handleSendAnswerTo(c *conn, f Frame) (any, string) {
	var args sendAnswerArgs
	if err := unmarshalArgs(f, &args); err != nil || args.TargetHandle == "" {
		return nil, "invalid send_answer_to arguments"
	}

	event := Frame{Event: EventAnswer, Args: mustMarshal(answerEvent{From: c.handle, SDP: args.SDP})}
	errMsg, delivered := h.relayToTarget(c, args.TargetHandle, event)
	if errMsg != "" {
		return nil, errMsg
	}
	return successResult{Success: delivered}, ""
}

func (h *Hub) handleSendIceCandidateTo(c *conn, f Frame) (any, string) {
	var args sendIceCandidateArgs
	if err := unmarshalArgs(f, &args); err != nil || args.TargetHandle == "" {
		return nil, "invalid send_ice_candidate_to arguments"
	}

	event := Frame{Event: EventIceCandidate, Args: mustMarshal(iceCandidateEvent{
		From:          c.handle,
		Candidate:     args.Candidate,
		SDPMid:        args.SDPMid,
		SDPMLineIndex: args.SDPMLineIndex,
	})}
	errMsg, delivered := h.relayToTarget(c, args.TargetHandle, event)
	if errMsg != "" {
		return nil, errMsg
	}
	return successResult{Success: delivered}, ""
}

func (h *Hub) handleSendPublicKeyTo(c *conn, f Frame) (any, string) {
	var args sendPublicKeyArgs
	if err := unmarshalArgs(f, &args); err != nil || args.TargetHandle == "" {
		return nil, "invalid send_public_key_to arguments"
	}

	event := Frame{Event: EventPublicKey, Args: mustMarshal(publicKeyEvent{From: c.handle, Key: args.KeyMaterial})}
	errMsg, delivered := h.relayToTarget(c, args.TargetHandle, event)
	if errMsg != "" {
		return nil, errMsg
	}
	return successResult{Success: delivered}, ""
}

// handleReportConnectionEstablished records a completed P2P link, which
// protects active transfers from TTL expiry.
func (h *Hub) handleReportConnectionEstablished(c *conn, f Frame) (any, string) {
	sessionID, _, state := c.snapshot()
	if state != stateJoined {
		return nil, "connection has not joined a session"
	}

	if err := h.registry.IncConnectedPairs(sessionID); err != nil {
		return nil, mapRegistryError(err)
	}
	return successResult{Success: true}, ""
}

// handleReportConnectionClosed retires a previously established P2P link.
func (h *Hub) handleReportConnectionClosed(c *conn, f Frame) (any, string) {
	sessionID, _, state := c.snapshot()
	if state != stateJoined {
		return nil, "connection has not joined a session"
	}

	if err := h.registry.DecConnectedPairs(sessionID); err != nil {
		return nil, mapRegistryError(err)
	}
	return successResult{Success: true}, ""
}

// hostCommand is the shared shape behind the four host-authority toggles:
// resolve the caller's session, invoke the registry mutator (which itself
// verifies creator authority), and broadcast the resulting event to every
// session member including the caller.
func (h *Hub) hostCommand(c *conn, apply func(sessionID, userID string) bool, event EventName) (any, string) {
	sessionID, userID, state := c.snapshot()
	if state != stateJoined {
		return nil, "connection has not joined a session"
	}

	if !apply(sessionID, userID) {
		return nil, "caller is not the session host"
	}

	h.broadcastToSession(sessionID, Frame{Event: event})
	return successResult{Success: true}, ""
}

func (h *Hub) handleLockSession(c *conn, f Frame) (any, string) {
	return h.hostCommand(c, h.registry.Lock, EventSessionLocked)
}

func (h *Hub) handleUnlockSession(c *conn, f Frame) (any, string) {
	return h.hostCommand(c, h.registry.Unlock, EventSessionUnlocked)
}

func (h *Hub) handleEnableHostOnlySending(c *conn, f Frame) (any, string) {
	return h.hostCommand(c, h.registry.EnableHostOnlySending, EventHostOnlySendingEnabled)
}

func (h *Hub) handleDisableHostOnlySending(c *conn, f Frame) (any, string) {
	return h.hostCommand(c, h.registry.DisableHostOnlySending, EventHostOnlySendingDisabled)
}

// handleKickPeer evicts targetHandle from the caller's session, verifying
// the caller is the session's host.
func (h *Hub) handleKickPeer(c *conn, f Frame) (any, string) {
	var args targetedArgs
	if err := unmarshalArgs(f, &args); err != nil || args.TargetHandle == "" {
		return nil, "invalid kick_peer arguments"
	}

	sessionID, userID, state := c.snapshot()
	if state != stateJoined {
		return nil, "connection has not joined a session"
	}
	if !h.registry.IsCreator(sessionID, userID) {
		return nil, "caller is not the session host"
	}

	target, ok := h.connByHandle(args.TargetHandle)
	if !ok {
		return nil, "target connection not found"
	}

	targetSession, targetUserID, targetState := target.snapshot()
	if targetState != stateJoined || targetSession != sessionID {
		return nil, "target is not a member of this session"
	}

	h.registry.RemovePeer(sessionID, target.handle)
	target.setState(stateDisconnected)
	target.enqueue(Frame{Event: EventKicked})

	h.broadcastToOthers(sessionID, target.handle, Frame{
		Event: EventPeerLeft,
		Args:  mustMarshal(peerHandleEvent{Handle: target.handle}),
	})

	h.logger.Info("peer kicked", slog.String("session_id", sessionID),
		slog.String("target_handle", args.TargetHandle), slog.String("target_user_id", targetUserID))

	return successResult{Success: true}, ""
}

// mapRegistryError renders a registry sentinel error as a client-facing
// message. The browser client matches these strings as substrings, so
// their wording is part of the wire contract.
func mapRegistryError(err error) string {
	switch {
	case errors.Is(err, registry.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, registry.ErrSessionLocked):
		return "Session is locked"
	case errors.Is(err, registry.ErrSessionFull):
		return "Session is full"
	default:
		return "Session unavailable"
	}
}
