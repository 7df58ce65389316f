package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/opkey-ai/reasoning-engine/internal/engine"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/orchestrator"
	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second

	// Close code sent when the connection limit is exceeded.
	wsCloseAtCapacity = 4000

	codeInvalidPayload     = "INVALID_PAYLOAD"
	codeUnknownEvent       = "UNKNOWN_EVENT"
	codeClarificationError = "CLARIFICATION_ERROR"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// clientFrame is an inbound {event, payload} frame.
type clientFrame struct {
	Event   models.EventType `json:"event"`
	Payload json.RawMessage  `json:"payload"`
}

// wsConn wraps a websocket connection with serialized writes and
// heartbeat accounting.
type wsConn struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex
	missed  atomic.Int32

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		conn: conn,
		done: make(chan struct{}),
	}
}

// writeEvent sends one {event, payload} frame.
func (c *wsConn) writeEvent(event models.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
	return c.conn.WriteJSON(event)
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// heartbeat pings the client on every tick. A pong resets the missed
// counter; too many consecutive misses kill the connection.
func (c *wsConn) heartbeat(interval time.Duration, maxMissed int) {
	if interval <= 0 {
		interval = 20 * time.Second
	}
	if maxMissed <= 0 {
		maxMissed = 3
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if int(c.missed.Add(1)) > maxMissed {
				c.close()
				return
			}
			c.writeMu.Lock()
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait)) //nolint:errcheck
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if err := s.authorize(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := newWSConn(conn)
	ctx := observability.WithConnectionID(r.Context(), c.id)

	if !s.manager.Add(c) {
		_ = c.writeEvent(models.Event{ //nolint:errcheck
			Event: models.EventMaxConnectionsExceeded,
			Payload: map[string]any{
				"message":         "Maximum concurrent connections exceeded",
				"max_connections": s.manager.MaxConnections(),
			},
		})
		msg := websocket.FormatCloseMessage(wsCloseAtCapacity, "at capacity")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait)) //nolint:errcheck
		c.close()
		return
	}

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}
	if s.logger != nil {
		s.logger.Info(ctx, "websocket connected", "active_count", s.manager.ActiveCount())
	}

	defer func() {
		s.manager.Remove(c.id)
		if s.router != nil {
			s.router.unbindWriter(c)
		}
		c.close()
		if s.metrics != nil {
			s.metrics.ConnectionClosed()
		}
		if s.logger != nil {
			s.logger.Info(ctx, "websocket disconnected", "active_count", s.manager.ActiveCount())
		}
	}()

	s.readLoop(ctx, c)
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	c.conn.SetReadLimit(wsMaxPayloadBytes)
	c.conn.SetPongHandler(func(string) error {
		c.missed.Store(0)
		return nil
	})
	go c.heartbeat(s.cfg.HeartbeatInterval, s.cfg.HeartbeatMaxMissed)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.sendError(c, "", codeInvalidPayload, "Malformed frame")
			continue
		}
		s.dispatch(ctx, c, &frame)
	}
}

func (s *Server) dispatch(ctx context.Context, c *wsConn, frame *clientFrame) {
	if s.logger != nil {
		s.logger.Debug(ctx, "received event", "event", string(frame.Event))
	}

	switch frame.Event {
	case models.EventPing:
		_ = c.writeEvent(models.Event{Event: models.EventPong, Payload: map[string]any{}}) //nolint:errcheck
	case models.EventStartChat:
		// Processed off the read loop so heartbeats keep flowing
		// during long planner turns.
		go s.handleStartChat(ctx, c, frame.Payload)
	case models.EventProvideClarification:
		go s.handleProvideClarification(ctx, c, frame.Payload)
	case models.EventEndChat:
		s.handleEndChat(ctx, frame.Payload)
	case models.EventInputAnalysis:
		s.handleInputAnalysisFrame(ctx, c, frame.Payload)
	default:
		s.sendError(c, "", codeUnknownEvent, "Unknown event "+string(frame.Event))
	}
}

// startChatPayload is the start_chat frame body. The userDTO and
// attachment key names come from the dashboard client.
type startChatPayload struct {
	ChatID      string               `json:"chat_id"`
	Message     string               `json:"message"`
	UserDTO     *models.UserInfo     `json:"userDTO"`
	Attachment  []string             `json:"attachment"`
	UserID      string               `json:"user_id"`
	ServiceType string               `json:"service_type"`
	Domain      string               `json:"domain"`
	History     []models.ChatMessage `json:"history"`
	ProjectKey  string               `json:"project_key"`

	// LastEventID marks the last event the client saw before a
	// reconnect; everything after it is replayed on bind.
	LastEventID string `json:"last_event_id"`
}

// userInfo merges the userDTO object with the top-level identity keys
// some clients send instead.
func (p *startChatPayload) userInfo() *models.UserInfo {
	info := p.UserDTO
	if info == nil {
		if p.UserID == "" && p.Domain == "" && p.ProjectKey == "" {
			return nil
		}
		info = &models.UserInfo{}
	}
	if info.UserID == "" {
		info.UserID = p.UserID
	}
	if info.Domain == "" {
		info.Domain = p.Domain
	}
	if info.ProjectKey == "" {
		info.ProjectKey = p.ProjectKey
	}
	return info
}

func (s *Server) handleStartChat(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p startChatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, "", codeInvalidPayload, "Malformed payload")
		return
	}
	if p.ChatID == "" {
		if s.logger != nil {
			s.logger.Warn(ctx, "missing chat_id in start_chat payload")
		}
		s.sendError(c, "", codeInvalidPayload, "Missing chat_id")
		return
	}
	if p.Message == "" {
		s.sendError(c, p.ChatID, codeInvalidPayload, "Missing message")
		return
	}

	if s.logger != nil {
		s.logger.Info(ctx, "processing chat",
			"chat_id", p.ChatID,
			"message_length", len(p.Message),
			"service_type", p.ServiceType,
		)
	}

	if s.router != nil {
		s.router.bind(p.ChatID, c)
		if p.LastEventID != "" {
			if err := s.router.replay(ctx, p.ChatID, p.LastEventID, c); err != nil && s.logger != nil {
				s.logger.Warn(ctx, "event replay failed", "chat_id", p.ChatID, "error", err)
			}
		}
	}

	err := s.conv.StartConversation(ctx, &orchestrator.StartRequest{
		ConversationID: p.ChatID,
		MessageID:      uuid.NewString(),
		Message:        p.Message,
		UserInfo:       p.userInfo(),
		History:        p.History,
		Attachments:    p.Attachment,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "start_chat failed", "chat_id", p.ChatID, "error", err)
		}
		code, msg := engine.MapError(err)
		s.sendError(c, p.ChatID, code, msg)
	}
}

type clarificationPayload struct {
	ChatID          string `json:"chat_id"`
	ClarificationID string `json:"clarification_id"`
	Response        string `json:"response"`
}

func (s *Server) handleProvideClarification(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p clarificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.sendError(c, "", codeInvalidPayload, "Malformed payload")
		return
	}
	if p.ChatID == "" || p.ClarificationID == "" {
		s.sendError(c, p.ChatID, codeInvalidPayload, "Missing required fields")
		return
	}

	if s.router != nil {
		s.router.bind(p.ChatID, c)
	}

	err := s.conv.HandleClarificationResponse(ctx, p.ChatID, p.ClarificationID, uuid.NewString(), p.Response)
	switch {
	case err == nil:
	case errors.Is(err, orchestrator.ErrNoPendingClarification):
		s.sendError(c, p.ChatID, codeClarificationError, "No matching clarification request is pending.")
	default:
		if s.logger != nil {
			s.logger.Error(ctx, "clarification failed", "chat_id", p.ChatID, "error", err)
		}
		code, msg := engine.MapError(err)
		s.sendError(c, p.ChatID, code, msg)
	}
}

func (s *Server) handleEndChat(ctx context.Context, raw json.RawMessage) {
	var p struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.ChatID == "" {
		return
	}
	if err := s.conv.EndConversation(ctx, p.ChatID); err != nil && s.logger != nil {
		s.logger.Error(ctx, "end_chat failed", "chat_id", p.ChatID, "error", err)
	}
}

func (s *Server) handleInputAnalysisFrame(ctx context.Context, c *wsConn, raw json.RawMessage) {
	var p struct {
		ChatID  string `json:"chat_id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &p); err != nil || p.ChatID == "" || p.Message == "" {
		s.sendError(c, p.ChatID, codeInvalidPayload, "Missing required fields")
		return
	}

	result := AnalyzeInput(p.ChatID, p.Message)
	_ = c.writeEvent(models.Event{ //nolint:errcheck
		Event:   models.EventInputAnalysisResult,
		Payload: result.payload(),
	})
}

func (s *Server) sendError(c *wsConn, chatID, code, message string) {
	_ = c.writeEvent(models.Event{ //nolint:errcheck
		Event: models.EventError,
		Payload: map[string]any{
			"chat_id":    chatID,
			"error_code": code,
			"message":    message,
		},
	})
}
