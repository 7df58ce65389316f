// Package gateway exposes the engine over a websocket wire protocol of
// {event, payload} JSON frames, plus a small REST surface for health,
// metrics, and input analysis.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opkey-ai/reasoning-engine/internal/config"
	"github.com/opkey-ai/reasoning-engine/internal/observability"
	"github.com/opkey-ai/reasoning-engine/internal/orchestrator"
	"github.com/opkey-ai/reasoning-engine/internal/storage"
)

const (
	inputAnalysisPath = "/wilfred_v4/planner-dashboard/input_analysis"

	serverShutdownTimeout = 10 * time.Second
)

// Conversations is the orchestrator surface the gateway drives.
type Conversations interface {
	StartConversation(ctx context.Context, req *orchestrator.StartRequest) error
	HandleClarificationResponse(ctx context.Context, conversationID, clarificationID, messageID, response string) error
	EndConversation(ctx context.Context, conversationID string) error
}

// Options wires the server's collaborators. Conversations and Router
// are required; Store enables health checks and event persistence.
type Options struct {
	Config        config.ServerConfig
	Conversations Conversations
	Router        *EventRouter
	Store         storage.ConversationStore
	Logger        *observability.Logger
	Metrics       *observability.Metrics

	// MetricsEnabled exposes the Prometheus handler on /metrics.
	MetricsEnabled bool
}

// Server is the websocket/REST front of the engine.
type Server struct {
	cfg     config.ServerConfig
	conv    Conversations
	router  *EventRouter
	store   storage.ConversationStore
	logger  *observability.Logger
	metrics *observability.Metrics

	metricsEnabled bool
	manager        *ConnectionManager
}

// NewServer creates a gateway server.
func NewServer(opts Options) *Server {
	return &Server{
		cfg:            opts.Config,
		conv:           opts.Conversations,
		router:         opts.Router,
		store:          opts.Store,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		metricsEnabled: opts.MetricsEnabled,
		manager:        NewConnectionManager(opts.Config.MaxConcurrentConnections),
	}
}

// Handler returns the HTTP handler serving the websocket endpoint and
// the REST routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc(inputAnalysisPath, s.handleInputAnalysis)
	if s.metricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	if s.logger != nil {
		s.logger.Info(ctx, "gateway listening", "addr", srv.Addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// authorize validates the bearer token when an auth secret is
// configured. Tokens are HMAC-signed JWTs sharing the secret. The token
// may arrive as an Authorization header or a token query parameter
// (browser websocket clients cannot set headers).
func (s *Server) authorize(r *http.Request) error {
	if s.cfg.AuthSecret == "" {
		return nil
	}

	token := ""
	if authHeader := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		token = strings.TrimSpace(authHeader[7:])
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return errors.New("missing bearer token")
	}

	_, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.AuthSecret), nil
	})
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]any{}

	if s.store != nil {
		if _, err := s.store.Exists(r.Context(), "__health_check__"); err != nil {
			status = "unhealthy"
			checks["storage"] = map[string]any{"status": "unhealthy", "error": err.Error()}
		} else {
			checks["storage"] = map[string]any{"status": "healthy"}
		}
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"connections": map[string]any{
			"active": s.manager.ActiveCount(),
			"max":    s.manager.MaxConnections(),
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck
}
