package hub

// broadcastToSession fans out an event frame to every peer currently
// joined to sessionID, including the caller where one exists.
func (h *Hub) broadcastToSession(sessionID string, f Frame) {
	peers, err := h.registry.PeersIn(sessionID)
	if err != nil {
		return
	}

	for _, p := range peers {
		if target, ok := h.connByHandle(p.ConnectionHandle); ok {
			target.enqueue(f)
		}
	}
}

// broadcastToOthers fans out an event frame to every peer joined to
// sessionID except excludeHandle. Used for peer-joined/peer-left
// notifications, which should not echo back to their own originator.
func (h *Hub) broadcastToOthers(sessionID, excludeHandle string, f Frame) {
	peers, err := h.registry.PeersIn(sessionID)
	if err != nil {
		return
	}

	for _, p := range peers {
		if p.ConnectionHandle == excludeHandle {
			continue
		}
		if target, ok := h.connByHandle(p.ConnectionHandle); ok {
			target.enqueue(f)
		}
	}
}
