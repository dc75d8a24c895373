package hub_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/johnkord/sendie/internal/auth"
	"github.com/johnkord/sendie/internal/config"
	"github.com/johnkord/sendie/internal/hub"
	"github.com/johnkord/sendie/internal/ratelimit"
	"github.com/johnkord/sendie/internal/registry"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		BaseTTLMinutes:                   30,
		AbsoluteMaxHoursHostConnected:    24,
		AbsoluteMaxHoursHostDisconnected: 4,
		HostGraceMinutes:                 30,
		EmptyTimeoutMinutes:              5,
		MaxPeersDefault:                  10,
	}
}

// harness wires a full hub behind an httptest.Server, the way sendied
// wires the hub in production: auth middleware, rate limiter, and
// registry all present.
type harness struct {
	t       *testing.T
	srv     *httptest.Server
	reg     *registry.Registry
	limiter *ratelimit.Limiter
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := discardLogger()
	reg := registry.New(logger, testSessionConfig())
	limiter := ratelimit.New(logger)
	h := hub.New(logger, reg, limiter)

	mux := http.NewServeMux()
	mux.Handle("/hub", auth.Middleware(h.Handler()))
	srv := httptest.NewServer(mux)

	t.Cleanup(srv.Close)

	return &harness{t: t, srv: srv, reg: reg, limiter: limiter}
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/hub"
}

// client wraps one dialed connection with typed send/receive helpers.
type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (h *harness) dial(userID string) *client {
	h.t.Helper()

	header := http.Header{}
	if userID != "" {
		header.Set(auth.HeaderUserID, userID)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(h.wsURL(), header)
	if err != nil {
		h.t.Fatalf("dial: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	c := &client{t: h.t, conn: conn}
	h.t.Cleanup(func() { conn.Close() })
	return c
}

func (c *client) call(id, method string, args any) map[string]json.RawMessage {
	c.t.Helper()

	payload := map[string]any{"id": id, "method": method}
	if args != nil {
		payload["args"] = args
	}
	if err := c.conn.WriteJSON(payload); err != nil {
		c.t.Fatalf("write %s: %v", method, err)
	}

	return c.readUntilID(id)
}

// readUntilID reads frames until one with a matching ID arrives, skipping
// any events that happen to interleave.
func (c *client) readUntilID(id string) map[string]json.RawMessage {
	c.t.Helper()

	for i := 0; i < 10; i++ {
		c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var frame map[string]json.RawMessage
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.t.Fatalf("read response to %s: %v", id, err)
		}
		if gotID, ok := frame["id"]; ok {
			var s string
			json.Unmarshal(gotID, &s)
			if s == id {
				return frame
			}
		}
	}
	c.t.Fatalf("no response for id %s after 10 frames", id)
	return nil
}

func (c *client) readEvent() (string, map[string]json.RawMessage) {
	c.t.Helper()

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]json.RawMessage
	if err := c.conn.ReadJSON(&frame); err != nil {
		c.t.Fatalf("read event: %v", err)
	}

	var event string
	if raw, ok := frame["event"]; ok {
		json.Unmarshal(raw, &event)
	}
	return event, frame
}

func resultOf(t *testing.T, frame map[string]json.RawMessage) map[string]any {
	t.Helper()

	var result map[string]any
	if err := json.Unmarshal(frame["result"], &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	return result
}

func TestJoinSessionGrantsInitiatorRoleToFirstPeer(t *testing.T) {
	h := newHarness(t)

	snap, err := h.reg.Create("host-1", 4)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	c := h.dial("host-1")
	resp := c.call("1", "join_session", map[string]string{"session_id": snap.ID})
	result := resultOf(t, resp)

	if success, _ := result["success"].(bool); !success {
		t.Fatalf("join_session failed: %+v", result)
	}
	if initiator, _ := result["is_initiator_role"].(bool); !initiator {
		t.Errorf("expected first joiner to be initiator, got %+v", result)
	}
	if isHost, _ := result["is_host"].(bool); !isHost {
		t.Errorf("expected host-1 to be recognized as host, got %+v", result)
	}
}

func TestSecondJoinerSeesExistingPeerForGlareAvoidance(t *testing.T) {
	h := newHarness(t)

	snap, err := h.reg.Create("host-1", 4)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	first := h.dial("host-1")
	first.call("1", "join_session", map[string]string{"session_id": snap.ID})

	second := h.dial("peer-2")
	resp := second.call("2", "join_session", map[string]string{"session_id": snap.ID})
	result := resultOf(t, resp)

	if initiator, _ := result["is_initiator_role"].(bool); initiator {
		t.Errorf("second joiner must not be initiator")
	}

	existing, _ := result["existing_peers"].([]any)
	if len(existing) != 1 {
		t.Fatalf("expected one existing peer for glare avoidance, got %v", existing)
	}

	event, _ := first.readEvent()
	if event != "OnPeerJoined" {
		t.Errorf("expected first peer to observe OnPeerJoined, got %q", event)
	}
}

func TestLockSessionRequiresHostAndBroadcasts(t *testing.T) {
	h := newHarness(t)

	snap, err := h.reg.Create("host-1", 4)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := h.dial("host-1")
	host.call("1", "join_session", map[string]string{"session_id": snap.ID})

	guest := h.dial("guest-1")
	guest.call("2", "join_session", map[string]string{"session_id": snap.ID})
	host.readEvent() // drain OnPeerJoined observed by host

	resp := guest.call("3", "lock_session", nil)
	result := resultOf(t, resp)
	if success, _ := result["success"].(bool); success {
		t.Fatalf("expected non-host lock_session to fail")
	}

	resp = host.call("4", "lock_session", nil)
	result = resultOf(t, resp)
	if success, _ := result["success"].(bool); !success {
		t.Fatalf("expected host lock_session to succeed: %+v", result)
	}

	event, _ := guest.readEvent()
	if event != "OnSessionLocked" {
		t.Errorf("expected guest to observe OnSessionLocked, got %q", event)
	}
}

func TestKickPeerEvictsTargetAndNotifiesRemaining(t *testing.T) {
	h := newHarness(t)

	snap, err := h.reg.Create("host-1", 4)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := h.dial("host-1")
	host.call("1", "join_session", map[string]string{"session_id": snap.ID})

	guest := h.dial("guest-1")
	guestResp := guest.call("2", "join_session", map[string]string{"session_id": snap.ID})
	_ = resultOf(t, guestResp)
	host.readEvent() // OnPeerJoined

	peers, err := h.reg.PeersIn(snap.ID)
	if err != nil || len(peers) != 2 {
		t.Fatalf("expected two peers in session, got %v err=%v", peers, err)
	}

	var guestHandle string
	for _, p := range peers {
		if p.UserID == "guest-1" {
			guestHandle = p.ConnectionHandle
		}
	}
	if guestHandle == "" {
		t.Fatalf("could not resolve guest connection handle")
	}

	resp := host.call("3", "kick_peer", map[string]string{"target_handle": guestHandle})
	result := resultOf(t, resp)
	if success, _ := result["success"].(bool); !success {
		t.Fatalf("expected kick_peer to succeed: %+v", result)
	}

	event, _ := guest.readEvent()
	if event != "OnKicked" {
		t.Errorf("expected kicked guest to observe OnKicked, got %q", event)
	}

	remaining, err := h.reg.PeersIn(snap.ID)
	if err != nil || len(remaining) != 1 {
		t.Fatalf("expected one peer remaining after kick, got %v err=%v", remaining, err)
	}
}

// TestHostOnlySendingIsAdvisoryOnly verifies that enabling
// is_host_only_sending only broadcasts the toggle event; the hub never
// gates signaling routing on it. Enforcement is a client cooperation
// contract, not a server-side gate.
func TestHostOnlySendingIsAdvisoryOnly(t *testing.T) {
	h := newHarness(t)

	snap, err := h.reg.Create("host-1", 4)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	host := h.dial("host-1")
	host.call("1", "join_session", map[string]string{"session_id": snap.ID})

	guest := h.dial("guest-1")
	guest.call("2", "join_session", map[string]string{"session_id": snap.ID})
	host.readEvent() // OnPeerJoined

	resp := host.call("3", "enable_host_only_sending", nil)
	result := resultOf(t, resp)
	if success, _ := result["success"].(bool); !success {
		t.Fatalf("expected enable_host_only_sending to succeed: %+v", result)
	}
	guest.readEvent() // OnHostOnlySendingEnabled

	peers, err := h.reg.PeersIn(snap.ID)
	if err != nil {
		t.Fatalf("peers in: %v", err)
	}
	var hostHandle string
	for _, p := range peers {
		if p.UserID == "host-1" {
			hostHandle = p.ConnectionHandle
		}
	}

	resp = guest.call("4", "send_offer_to", map[string]string{"target_handle": hostHandle, "sdp": "v=0"})
	result = resultOf(t, resp)
	if success, _ := result["success"].(bool); !success {
		t.Fatalf("expected guest relay to still be routed while host-only sending is enabled: %+v", result)
	}

	if event, payload := host.readEvent(); event != "OnOffer" {
		t.Fatalf("expected host to receive the relayed offer, got event=%q payload=%v", event, payload)
	}
}

// TestDisconnectClearsRateLimitBuckets verifies that tearing down a
// connection clears its rate-limit buckets, so a reconnecting client is
// not penalized by a prior connection handle's exhausted window.
func TestDisconnectClearsRateLimitBuckets(t *testing.T) {
	h := newHarness(t)

	guest := h.dial("")
	guest.call("1", "leave_session", nil) // leave_session touches the SignalingMessage bucket

	if h.limiter.Len() == 0 {
		t.Fatal("expected a rate-limit bucket to exist before disconnect")
	}

	guest.conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.limiter.Len() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if got := h.limiter.Len(); got != 0 {
		t.Errorf("limiter.Len() after disconnect = %d, want 0 (buckets cleared)", got)
	}
}
