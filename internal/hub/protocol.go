// Package hub implements the signaling hub: the persistent duplex channel
// between each browser and the service, routing offers/answers/ICE
// candidates/public keys between peers and carrying host control-plane
// commands.
package hub

import "encoding/json"

// Method names the closed set of inbound, client-to-hub calls. The
// dispatch table in hub.go maps these to handlers via a switch
// statement, not a dynamic callback map.
type Method string

const (
	MethodJoinSession                 Method = "join_session"
	MethodLeaveSession                Method = "leave_session"
	MethodSendOfferTo                 Method = "send_offer_to"
	MethodSendAnswerTo                Method = "send_answer_to"
	MethodSendIceCandidateTo          Method = "send_ice_candidate_to"
	MethodSendPublicKeyTo             Method = "send_public_key_to"
	MethodReportConnectionEstablished Method = "report_connection_established"
	MethodReportConnectionClosed      Method = "report_connection_closed"
	MethodLockSession                 Method = "lock_session"
	MethodUnlockSession               Method = "unlock_session"
	MethodKickPeer                    Method = "kick_peer"
	MethodEnableHostOnlySending       Method = "enable_host_only_sending"
	MethodDisableHostOnlySending      Method = "disable_host_only_sending"
)

// EventName names the closed set of outbound, hub-to-client events.
type EventName string

const (
	EventPeerJoined              EventName = "OnPeerJoined"
	EventPeerLeft                EventName = "OnPeerLeft"
	EventOffer                   EventName = "OnOffer"
	EventAnswer                  EventName = "OnAnswer"
	EventIceCandidate            EventName = "OnIceCandidate"
	EventPublicKey               EventName = "OnPublicKey"
	EventSessionLocked           EventName = "OnSessionLocked"
	EventSessionUnlocked         EventName = "OnSessionUnlocked"
	EventKicked                  EventName = "OnKicked"
	EventHostOnlySendingEnabled  EventName = "OnHostOnlySendingEnabled"
	EventHostOnlySendingDisabled EventName = "OnHostOnlySendingDisabled"
)

// Frame is the wire format for both directions. An inbound frame carries
// Method, an optional invocation ID, and an argument payload. An outbound
// frame is either a method response (ID set, Method echoed, Result set)
// or a server-initiated event (Event set, no ID).
type Frame struct {
	ID     string          `json:"id,omitempty"`
	Method Method          `json:"method,omitempty"`
	Event  EventName       `json:"event,omitempty"`
	Args   json.RawMessage `json:"args,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// -------------------------------------------------------------------------
// Inbound argument payloads
// -------------------------------------------------------------------------

type joinSessionArgs struct {
	SessionID string `json:"session_id"`
}

type targetedArgs struct {
	TargetHandle string `json:"target_handle"`
}

type sendOfferArgs struct {
	TargetHandle string `json:"target_handle"`
	SDP          string `json:"sdp"`
}

type sendAnswerArgs struct {
	TargetHandle string `json:"target_handle"`
	SDP          string `json:"sdp"`
}

type sendIceCandidateArgs struct {
	TargetHandle  string `json:"target_handle"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex int    `json:"sdp_m_line_index"`
}

type sendPublicKeyArgs struct {
	TargetHandle string `json:"target_handle"`
	KeyMaterial  string `json:"key_material"`
}

// -------------------------------------------------------------------------
// Response payloads
// -------------------------------------------------------------------------

type joinSessionResult struct {
	Success           bool     `json:"success"`
	IsInitiatorRole   bool     `json:"is_initiator_role,omitempty"`
	ExistingPeers     []string `json:"existing_peers,omitempty"`
	IsHost            bool     `json:"is_host,omitempty"`
	HostConnection    string   `json:"host_connection_handle,omitempty"`
	IsLocked          bool     `json:"is_locked,omitempty"`
	IsHostOnlySending bool     `json:"is_host_only_sending,omitempty"`
	Error             string   `json:"error,omitempty"`
}

type successResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// -------------------------------------------------------------------------
// Event payloads
// -------------------------------------------------------------------------

type peerHandleEvent struct {
	Handle string `json:"handle"`
}

type offerEvent struct {
	From string `json:"from"`
	SDP  string `json:"sdp"`
}

type answerEvent struct {
	From string `json:"from"`
	SDP  string `json:"sdp"`
}

type iceCandidateEvent struct {
	From          string `json:"from"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdp_mid"`
	SDPMLineIndex int    `json:"sdp_m_line_index"`
}

type publicKeyEvent struct {
	From string `json:"from"`
	Key  string `json:"key"`
}

// mustMarshal marshals v, panicking on failure. Only used for payloads
// built entirely in-process from known-good types, where a marshal
// failure indicates a programming error.
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("hub: marshal event payload: " + err.Error())
	}
	return data
}
