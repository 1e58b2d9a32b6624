// Package agent provides the HTTP handler for the compute agent.
// It is extracted from cmd/mallard-agent so that integration tests can
// spin up an in-process agent via httptest.NewServer.
package agent

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/mallard-db/mallard/internal/compute"
	"github.com/mallard-db/mallard/internal/middleware"
)

// maxRequestBody caps the size of JSON bodies the agent will read.
const maxRequestBody = 16 << 20

// maxClockSkew is the allowed age of a signed request timestamp.
const maxClockSkew = 2 * time.Minute

// HandlerConfig holds the parameters needed to build the agent HTTP handler.
type HandlerConfig struct {
	DB         *sql.DB
	AgentToken string
	TokenTTL   time.Duration
	StartTime  time.Time
	Logger     *slog.Logger
	RateLimit  *middleware.RateLimitConfig
}

// Handler is the compute agent's HTTP surface. Sessions opened via the
// handshake are tracked in memory; restarting the agent invalidates them.
type Handler struct {
	cfg    HandlerConfig
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]sessionState
}

type sessionState struct {
	clientID string
	openedAt time.Time
}

// NewHandler builds the compute agent's http.Handler with session, execute,
// and health routes. Callers authenticate twice: the handshake and every
// later request carry HMAC integrity headers derived from the shared agent
// token, and post-handshake requests additionally present the session JWT
// as a bearer token.
func NewHandler(cfg HandlerConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	h := &Handler{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]sessionState),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", compute.HeaderAgentTimestamp, compute.HeaderAgentSignature},
	}))
	if cfg.RateLimit != nil {
		r.Use(middleware.RateLimiter(*cfg.RateLimit))
	}

	r.Post("/session", h.handleOpenSession)
	r.Post("/execute", h.handleExecute)
	r.Delete("/session", h.handleCloseSession)
	r.Get("/health", h.handleHealth)

	return r
}

// handleOpenSession validates the signed handshake and mints a session token.
func (h *Handler) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	body, ok := h.readSignedBody(w, r, requestID)
	if !ok {
		return
	}

	var req compute.HandshakeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, compute.CodeParseError, "invalid request body", requestID)
		return
	}

	sessionID := uuid.NewString()
	token, expiresAt, err := compute.IssueSessionToken(h.cfg.AgentToken, sessionID, time.Now(), h.cfg.TokenTTL)
	if err != nil {
		h.logger.Error("issue session token failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, compute.CodeSessionError, "could not open session", requestID)
		return
	}

	h.mu.Lock()
	h.sessions[sessionID] = sessionState{clientID: req.ClientID, openedAt: time.Now()}
	h.mu.Unlock()

	h.logger.Info("session opened", "request_id", requestID, "session_id", sessionID, "client_id", req.ClientID)

	writeJSON(w, http.StatusOK, compute.HandshakeResponse{
		SessionID:    sessionID,
		SessionToken: token,
		ExpiresAt:    expiresAt.UTC().Format(time.RFC3339),
	})
}

// handleExecute runs SQL against the agent's DuckDB and returns JSON results.
func (h *Handler) handleExecute(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	body, ok := h.readSignedBody(w, r, requestID)
	if !ok {
		return
	}
	if _, ok := h.authorizeSession(w, r, requestID); !ok {
		return
	}

	var req compute.ExecuteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, compute.CodeParseError, "invalid request body", requestID)
		return
	}
	if requestID == "" {
		requestID = req.RequestID
	}

	h.logger.Info("executing query", "request_id", requestID)

	rows, err := h.cfg.DB.QueryContext(r.Context(), req.SQL)
	if err != nil {
		h.logger.Error("query execution failed", "request_id", requestID, "error", err)
		writeError(w, http.StatusInternalServerError, compute.CodeExecutionError, err.Error(), requestID)
		return
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, compute.CodeExecutionError, err.Error(), requestID)
		return
	}

	var resultRows [][]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			writeError(w, http.StatusInternalServerError, compute.CodeExecutionError, err.Error(), requestID)
			return
		}
		for i, v := range values {
			if b, isBytes := v.([]byte); isBytes {
				values[i] = string(b)
			}
		}
		resultRows = append(resultRows, values)
	}
	if err := rows.Err(); err != nil {
		writeError(w, http.StatusInternalServerError, compute.CodeExecutionError, err.Error(), requestID)
		return
	}

	h.logger.Info("query completed", "request_id", requestID, "row_count", len(resultRows))

	writeJSON(w, http.StatusOK, compute.ExecuteResponse{
		Columns:   cols,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		RequestID: requestID,
	})
}

// handleCloseSession revokes the caller's session.
func (h *Handler) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFromContext(r.Context())

	if _, ok := h.readSignedBody(w, r, requestID); !ok {
		return
	}
	sessionID, ok := h.authorizeSession(w, r, requestID)
	if !ok {
		return
	}

	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	h.logger.Info("session closed", "request_id", requestID, "session_id", sessionID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed", "session_id": sessionID})
}

// handleHealth reports agent liveness plus DuckDB version and memory usage.
// Unauthenticated so load balancers can probe it.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var version string
	row := h.cfg.DB.QueryRowContext(r.Context(), "SELECT version()")
	_ = row.Scan(&version)

	var memUsedBytes int64
	memRow := h.cfg.DB.QueryRowContext(r.Context(), "SELECT memory_usage FROM duckdb_memory()")
	_ = memRow.Scan(&memUsedBytes)

	h.mu.Lock()
	openSessions := len(h.sessions)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.cfg.StartTime).Seconds()),
		"duckdb_version": version,
		"memory_used_mb": memUsedBytes / (1024 * 1024),
		"open_sessions":  openSessions,
	})
}

// readSignedBody reads the request body and verifies the HMAC integrity
// headers against it. On failure it writes the error response and returns
// ok=false.
func (h *Handler) readSignedBody(w http.ResponseWriter, r *http.Request, requestID string) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, compute.CodeParseError, "could not read request body", requestID)
		return nil, false
	}
	if err := compute.VerifySignedHeaders(r, h.cfg.AgentToken, body, time.Now(), maxClockSkew); err != nil {
		h.logger.Warn("request signature rejected", "request_id", requestID, "error", err)
		writeError(w, http.StatusUnauthorized, compute.CodeAuthError, "unauthorized", requestID)
		return nil, false
	}
	return body, true
}

// authorizeSession validates the bearer session token and checks the session
// is still registered. Returns the session ID.
func (h *Handler) authorizeSession(w http.ResponseWriter, r *http.Request, requestID string) (string, bool) {
	auth := r.Header.Get("Authorization")
	bearer, found := strings.CutPrefix(auth, "Bearer ")
	if !found || bearer == "" {
		writeError(w, http.StatusUnauthorized, compute.CodeAuthError, "missing bearer token", requestID)
		return "", false
	}

	sessionID, err := compute.VerifySessionToken(h.cfg.AgentToken, bearer)
	if err != nil {
		h.logger.Warn("session token rejected", "request_id", requestID, "error", err)
		writeError(w, http.StatusUnauthorized, compute.CodeAuthError, "invalid session token", requestID)
		return "", false
	}

	h.mu.Lock()
	_, known := h.sessions[sessionID]
	h.mu.Unlock()
	if !known {
		writeError(w, http.StatusUnauthorized, compute.CodeSessionError, "unknown session", requestID)
		return "", false
	}
	return sessionID, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg, requestID string) {
	writeJSON(w, status, compute.ErrorResponse{Error: msg, Code: code, RequestID: requestID})
}
