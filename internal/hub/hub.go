package hub

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/johnkord/sendie/internal/ratelimit"
	"github.com/johnkord/sendie/internal/registry"
)

// MetricsReporter receives hub connection and message observations. The
// production collector implements this; tests may supply a no-op.
type MetricsReporter interface {
	RecordHubConnect()
	RecordHubDisconnect()
	RecordHubMessage(method string)
}

type noopMetrics struct{}

func (noopMetrics) RecordHubConnect()       {}
func (noopMetrics) RecordHubDisconnect()    {}
func (noopMetrics) RecordHubMessage(string) {}

// Hub holds every live connection and dispatches inbound frames to their
// handlers. Connections are independent of one another; routing between
// peers goes through the registry to resolve session membership rather
// than through any shared broadcast list.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*conn

	registry *registry.Registry
	limiter  *ratelimit.Limiter
	metrics  MetricsReporter
	logger   *slog.Logger
}

// Option configures optional Hub parameters.
type Option func(*Hub)

// WithMetrics sets the MetricsReporter used to record hub activity.
func WithMetrics(mr MetricsReporter) Option {
	return func(h *Hub) {
		if mr != nil {
			h.metrics = mr
		}
	}
}

// New creates a Hub wired to its collaborating services.
func New(logger *slog.Logger, reg *registry.Registry, limiter *ratelimit.Limiter, opts ...Option) *Hub {
	h := &Hub{
		conns:    make(map[string]*conn),
		registry: reg,
		limiter:  limiter,
		metrics:  noopMetrics{},
		logger:   logger.With(slog.String("component", "hub")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve takes ownership of an upgraded WebSocket connection for the
// duration of its lifetime: it registers the connection, runs its
// read/write pumps, and tears it down on exit. Blocks until the
// connection closes.
func (h *Hub) Serve(ws *websocket.Conn, userID string) {
	handle, err := newConnectionHandle()
	if err != nil {
		h.logger.Error("failed to mint connection handle", slog.String("error", err.Error()))
		ws.Close()
		return
	}

	c := newConn(handle, ws, h.logger)
	c.setUserID(userID)

	h.mu.Lock()
	h.conns[handle] = c
	h.mu.Unlock()

	h.metrics.RecordHubConnect()
	h.logger.Debug("connection opened", slog.String("user_id", userID))

	go c.writePump()
	c.readPump(h.dispatch)

	h.teardown(c)
}

// teardown removes a connection from the hub, releases its session
// membership (firing the same leave semantics as an explicit
// leave_session call), and clears its rate-limit buckets.
func (h *Hub) teardown(c *conn) {
	h.mu.Lock()
	delete(h.conns, c.handle)
	h.mu.Unlock()

	sessionID, userID, state := c.snapshot()
	if state == stateJoined && sessionID != "" {
		h.leaveSession(c, sessionID, userID)
	}

	h.limiter.ClearKey(c.handle)

	h.metrics.RecordHubDisconnect()
	h.logger.Debug("connection closed")
}

// dispatch routes one inbound frame to its handler via a closed switch
// over the method enum rather than a dynamic callback map, and writes
// the resulting response frame back to the caller.
func (h *Hub) dispatch(c *conn, f Frame) {
	if f.Method == "" {
		h.logger.Warn("dropping frame with no method")
		return
	}

	h.metrics.RecordHubMessage(string(f.Method))

	if allowed, retryAfter := h.checkRateLimit(c, f.Method); !allowed {
		// The client parses the retry seconds out of this message.
		h.respondError(c, f, fmt.Sprintf("Rate limit exceeded, retry in %d seconds", retryAfter))
		return
	}

	var result any
	var errMsg string

	switch f.Method {
	case MethodJoinSession:
		result, errMsg = h.handleJoinSession(c, f)
	case MethodLeaveSession:
		result, errMsg = h.handleLeaveSession(c, f)
	case MethodSendOfferTo:
		result, errMsg = h.handleSendOfferTo(c, f)
	case MethodSendAnswerTo:
		result, errMsg = h.handleSendAnswerTo(c, f)
	case MethodSendIceCandidateTo:
		result, errMsg = h.handleSendIceCandidateTo(c, f)
	case MethodSendPublicKeyTo:
		result, errMsg = h.handleSendPublicKeyTo(c, f)
	case MethodReportConnectionEstablished:
		result, errMsg = h.handleReportConnectionEstablished(c, f)
	case MethodReportConnectionClosed:
		result, errMsg = h.handleReportConnectionClosed(c, f)
	case MethodLockSession:
		result, errMsg = h.handleLockSession(c, f)
	case MethodUnlockSession:
		result, errMsg = h.handleUnlockSession(c, f)
	case MethodKickPeer:
		result, errMsg = h.handleKickPeer(c, f)
	case MethodEnableHostOnlySending:
		result, errMsg = h.handleEnableHostOnlySending(c, f)
	case MethodDisableHostOnlySending:
		result, errMsg = h.handleDisableHostOnlySending(c, f)
	default:
		h.respondError(c, f, "unknown method")
		return
	}

	if errMsg != "" {
		h.respondError(c, f, errMsg)
		return
	}

	if result != nil && f.ID != "" {
		c.enqueue(Frame{ID: f.ID, Method: f.Method, Result: mustMarshal(result)})
	}
}

// checkRateLimit evaluates the policy for method against the caller's
// connection handle. join_session uses the SessionJoin policy; ICE
// candidates use the dedicated ICECandidate policy; every other method
// falls back to SignalingMessage.
func (h *Hub) checkRateLimit(c *conn, method Method) (allowed bool, retryAfterSeconds int) {
	policy := ratelimit.SignalingMessage
	switch method {
	case MethodJoinSession:
		policy = ratelimit.SessionJoin
	case MethodSendIceCandidateTo:
		policy = ratelimit.ICECandidate
	}

	result, err := h.limiter.Check(policy, c.handle)
	if err != nil {
		return true, 0
	}
	if !result.Allowed {
		seconds := int(result.RetryAfter.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		return false, seconds
	}
	return true, 0
}

func (h *Hub) respondError(c *conn, f Frame, message string) {
	if f.ID == "" {
		return
	}
	c.enqueue(Frame{ID: f.ID, Method: f.Method, Result: mustMarshal(successResult{Success: false, Error: message})})
}

// connByHandle looks up a live connection by its hub handle.
func (h *Hub) connByHandle(handle string) (*conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	c, ok := h.conns[handle]
	return c, ok
}

func unmarshalArgs(f Frame, v any) error {
	if len(f.Args) == 0 {
		return nil
	}
	return json.Unmarshal(f.Args, v)
}
