package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/orchestrator"
	"github.com/opkey-ai/reasoning-engine/internal/storage"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

type fakeConversations struct {
	mu             sync.Mutex
	starts         []*orchestrator.StartRequest
	clarifications []string
	ended          []string

	startErr   error
	clarifyErr error

	// onStart runs with the lock released, after the request is
	// recorded. Used to emit events through the router.
	onStart func(ctx context.Context, req *orchestrator.StartRequest)
}

func (f *fakeConversations) StartConversation(ctx context.Context, req *orchestrator.StartRequest) error {
	f.mu.Lock()
	f.starts = append(f.starts, req)
	f.mu.Unlock()
	if f.onStart != nil {
		f.onStart(ctx, req)
	}
	return f.startErr
}

func (f *fakeConversations) HandleClarificationResponse(_ context.Context, conversationID, clarificationID, _, _ string) error {
	f.mu.Lock()
	f.clarifications = append(f.clarifications, conversationID+"/"+clarificationID)
	f.mu.Unlock()
	return f.clarifyErr
}

func (f *fakeConversations) EndConversation(_ context.Context, conversationID string) error {
	f.mu.Lock()
	f.ended = append(f.ended, conversationID)
	f.mu.Unlock()
	return nil
}

type testGateway struct {
	server *Server
	http   *httptest.Server
	conv   *fakeConversations
	store  storage.ConversationStore
	router *EventRouter
}

func newTestGateway(t *testing.T, mutate func(*Options)) *testGateway {
	t.Helper()

	store := storage.NewMemoryStore(time.Minute)
	t.Cleanup(func() { _ = store.Close() })

	conv := &fakeConversations{}
	router := NewEventRouter(store, nil)

	opts := Options{
		Config: config.ServerConfig{
			Host:                     "127.0.0.1",
			Port:                     0,
			MaxConcurrentConnections: 4,
		},
		Conversations: conv,
		Router:        router,
		Store:         store,
	}
	if mutate != nil {
		mutate(&opts)
	}

	server := NewServer(opts)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return &testGateway{server: server, http: ts, conv: conv, store: store, router: router}
}

func (g *testGateway) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type receivedFrame struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

func readFrame(t *testing.T, conn *websocket.Conn) *receivedFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame receivedFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return &frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, payload map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(map[string]any{"event": event, "payload": payload}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestPingPong(t *testing.T) {
	g := newTestGateway(t, nil)
	conn := g.dial(t, nil)

	sendFrame(t, conn, "ping", map[string]any{})

	frame := readFrame(t, conn)
	if frame.Event != "pong" {
		t.Errorf("event = %q, want pong", frame.Event)
	}
}

func TestStartChatMissingFields(t *testing.T) {
	g := newTestGateway(t, nil)
	conn := g.dial(t, nil)

	sendFrame(t, conn, "start_chat", map[string]any{"message": "export hcm"})
	frame := readFrame(t, conn)
	if frame.Event != "error" {
		t.Fatalf("event = %q, want error", frame.Event)
	}
	if frame.Payload["error_code"] != "INVALID_PAYLOAD" {
		t.Errorf("error_code = %v", frame.Payload["error_code"])
	}
	if frame.Payload["message"] != "Missing chat_id" {
		t.Errorf("message = %v", frame.Payload["message"])
	}

	sendFrame(t, conn, "start_chat", map[string]any{"chat_id": "conv-1"})
	frame = readFrame(t, conn)
	if frame.Payload["message"] != "Missing message" {
		t.Errorf("message = %v", frame.Payload["message"])
	}
	if frame.Payload["chat_id"] != "conv-1" {
		t.Errorf("chat_id = %v", frame.Payload["chat_id"])
	}

	if len(g.conv.starts) != 0 {
		t.Errorf("orchestrator must not be invoked on invalid payloads")
	}
}

func TestStartChatDispatchesAndRoutesEvents(t *testing.T) {
	g := newTestGateway(t, nil)
	g.conv.onStart = func(ctx context.Context, req *orchestrator.StartRequest) {
		g.router.Emit(ctx, models.Event{
			Event: models.EventProcessingStarted,
			Payload: map[string]any{
				"chat_id": req.ConversationID,
				"message": "Processing your request...",
			},
		})
	}

	conn := g.dial(t, nil)
	sendFrame(t, conn, "start_chat", map[string]any{
		"chat_id": "conv-1",
		"message": "export hcm configurations",
		"userDTO": map[string]any{"user_id": "u-9", "username": "dana"},
		"domain":  "acme.example",
	})

	frame := readFrame(t, conn)
	if frame.Event != "processing_started" {
		t.Fatalf("event = %q, want processing_started", frame.Event)
	}
	if frame.Payload["chat_id"] != "conv-1" {
		t.Errorf("chat_id = %v", frame.Payload["chat_id"])
	}

	g.conv.mu.Lock()
	defer g.conv.mu.Unlock()
	if len(g.conv.starts) != 1 {
		t.Fatalf("starts = %d, want 1", len(g.conv.starts))
	}
	req := g.conv.starts[0]
	if req.ConversationID != "conv-1" || req.Message != "export hcm configurations" {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.MessageID == "" {
		t.Error("message id must be generated")
	}
	if req.UserInfo == nil || req.UserInfo.UserID != "u-9" || req.UserInfo.Domain != "acme.example" {
		t.Errorf("user info = %+v", req.UserInfo)
	}

	// The routed event is also persisted in the conversation's log.
	events, err := g.store.Events(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 1 || events[0].Event != models.EventProcessingStarted {
		t.Errorf("persisted events = %+v", events)
	}
}

func TestProvideClarification(t *testing.T) {
	g := newTestGateway(t, nil)
	conn := g.dial(t, nil)

	sendFrame(t, conn, "provide_clarification", map[string]any{"chat_id": "conv-1"})
	frame := readFrame(t, conn)
	if frame.Payload["error_code"] != "INVALID_PAYLOAD" {
		t.Errorf("error_code = %v", frame.Payload["error_code"])
	}

	g.conv.clarifyErr = orchestrator.ErrNoPendingClarification
	sendFrame(t, conn, "provide_clarification", map[string]any{
		"chat_id":          "conv-1",
		"clarification_id": "clar-1",
		"response":         "HCM",
	})
	frame = readFrame(t, conn)
	if frame.Payload["error_code"] != "CLARIFICATION_ERROR" {
		t.Errorf("error_code = %v", frame.Payload["error_code"])
	}

	g.conv.mu.Lock()
	defer g.conv.mu.Unlock()
	if len(g.conv.clarifications) != 1 || g.conv.clarifications[0] != "conv-1/clar-1" {
		t.Errorf("clarifications = %v", g.conv.clarifications)
	}
}

func TestEndChat(t *testing.T) {
	g := newTestGateway(t, nil)
	conn := g.dial(t, nil)

	sendFrame(t, conn, "end_chat", map[string]any{"chat_id": "conv-1"})

	// end_chat has no response frame; ping to flush the dispatch.
	sendFrame(t, conn, "ping", map[string]any{})
	readFrame(t, conn)

	g.conv.mu.Lock()
	defer g.conv.mu.Unlock()
	if len(g.conv.ended) != 1 || g.conv.ended[0] != "conv-1" {
		t.Errorf("ended = %v", g.conv.ended)
	}
}

func TestUnknownEventRejected(t *testing.T) {
	g := newTestGateway(t, nil)
	conn := g.dial(t, nil)

	sendFrame(t, conn, "mystery", map[string]any{})
	frame := readFrame(t, conn)
	if frame.Payload["error_code"] != "UNKNOWN_EVENT" {
		t.Errorf("error_code = %v, want UNKNOWN_EVENT", frame.Payload["error_code"])
	}

	// Malformed frames on a known path still report INVALID_PAYLOAD.
	sendFrame(t, conn, "start_chat", map[string]any{})
	frame = readFrame(t, conn)
	if frame.Payload["error_code"] != "INVALID_PAYLOAD" {
		t.Errorf("error_code = %v, want INVALID_PAYLOAD", frame.Payload["error_code"])
	}
}

func TestMaxConnectionsExceeded(t *testing.T) {
	g := newTestGateway(t, func(o *Options) {
		o.Config.MaxConcurrentConnections = 1
	})

	first := g.dial(t, nil)
	sendFrame(t, first, "ping", map[string]any{})
	readFrame(t, first)

	second := g.dial(t, nil)
	frame := readFrame(t, second)
	if frame.Event != "max_concurrent_connections_exceeded" {
		t.Fatalf("event = %q", frame.Event)
	}
	if frame.Payload["max_connections"] != float64(1) {
		t.Errorf("max_connections = %v", frame.Payload["max_connections"])
	}

	// The first connection keeps working.
	sendFrame(t, first, "ping", map[string]any{})
	if got := readFrame(t, first); got.Event != "pong" {
		t.Errorf("event = %q, want pong", got.Event)
	}
}

func TestJWTAuth(t *testing.T) {
	g := newTestGateway(t, func(o *Options) {
		o.Config.AuthSecret = "test-secret"
	})

	url := "ws" + strings.TrimPrefix(g.http.URL, "http") + "/ws"
	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without token must fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake rejection, got %+v", resp)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-9"})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	conn := g.dial(t, http.Header{"Authorization": {"Bearer " + signed}})
	sendFrame(t, conn, "ping", map[string]any{})
	if frame := readFrame(t, conn); frame.Event != "pong" {
		t.Errorf("event = %q, want pong", frame.Event)
	}

	// Tokens signed with the wrong secret are rejected.
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u-9"})
	badSigned, err := forged.SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, resp, err := websocket.DefaultDialer.Dial(url+"?token="+badSigned, nil); err == nil {
		t.Fatal("forged token must fail")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(t, nil)

	resp, err := http.Get(g.http.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Status string         `json:"status"`
		Checks map[string]any `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if _, ok := body.Checks["storage"]; !ok {
		t.Error("storage check missing")
	}
}
