package compute

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ Executor = (*RemoteExecutor)(nil)

// RemoteExecutor sends SQL to a remote compute agent over HTTP and
// materializes results into a local DuckDB temp table to return *sql.Rows.
//
// All requests after the handshake carry the session token as a bearer
// token plus HMAC integrity headers derived from the shared agent token.
type RemoteExecutor struct {
	baseURL    string
	agentToken string
	clientID   string
	localDB    *sql.DB // for temp table materialization
	httpClient *http.Client

	mu           sync.Mutex
	sessionID    string
	sessionToken string
	tokenExpiry  time.Time
}

// NewRemoteExecutor creates a RemoteExecutor targeting the agent at baseURL.
// No network traffic happens until Handshake or the first query.
func NewRemoteExecutor(baseURL, agentToken, clientID string, localDB *sql.DB, timeout time.Duration) *RemoteExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteExecutor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		agentToken: agentToken,
		clientID:   clientID,
		localDB:    localDB,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Handshake opens a session on the agent and stores the returned session
// token for later requests.
func (e *RemoteExecutor) Handshake(ctx context.Context) error {
	body, err := json.Marshal(HandshakeRequest{ClientID: e.clientID})
	if err != nil {
		return fmt.Errorf("marshal handshake: %w", err)
	}

	var resp HandshakeResponse
	if err := e.doJSON(ctx, http.MethodPost, "/session", body, "", &resp); err != nil {
		return fmt.Errorf("agent handshake: %w", err)
	}
	if resp.SessionID == "" || resp.SessionToken == "" {
		return fmt.Errorf("agent handshake: empty session in response")
	}

	expiry, _ := time.Parse(time.RFC3339, resp.ExpiresAt)

	e.mu.Lock()
	e.sessionID = resp.SessionID
	e.sessionToken = resp.SessionToken
	e.tokenExpiry = expiry
	e.mu.Unlock()
	return nil
}

// SessionID returns the agent-assigned session ID, or "" before Handshake.
func (e *RemoteExecutor) SessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionID
}

// QueryContext sends the query to the remote agent and materializes the
// result into a local DuckDB temp table, returning *sql.Rows from that table.
func (e *RemoteExecutor) QueryContext(ctx context.Context, query string) (*sql.Rows, error) {
	token, err := e.currentToken(ctx)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	body, err := json.Marshal(ExecuteRequest{SQL: query, RequestID: requestID})
	if err != nil {
		return nil, fmt.Errorf("marshal execute request: %w", err)
	}

	var result ExecuteResponse
	if err := e.doJSON(ctx, http.MethodPost, "/execute", body, token, &result); err != nil {
		return nil, fmt.Errorf("remote execute: %w", err)
	}
	if result.Error != "" {
		return nil, fmt.Errorf("remote execution failed: %s", result.Error)
	}
	return e.materialize(ctx, result)
}

// CloseSession releases the session on the agent. Safe to call when no
// handshake happened.
func (e *RemoteExecutor) CloseSession(ctx context.Context) error {
	e.mu.Lock()
	token := e.sessionToken
	e.sessionID = ""
	e.sessionToken = ""
	e.mu.Unlock()

	if token == "" {
		return nil
	}
	if err := e.doJSON(ctx, http.MethodDelete, "/session", nil, token, nil); err != nil {
		return fmt.Errorf("close agent session: %w", err)
	}
	return nil
}

// Ping performs a health check against the remote agent.
func (e *RemoteExecutor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// currentToken returns a valid session token, re-handshaking if the current
// one is missing or about to expire.
func (e *RemoteExecutor) currentToken(ctx context.Context) (string, error) {
	e.mu.Lock()
	token := e.sessionToken
	expiry := e.tokenExpiry
	e.mu.Unlock()

	if token != "" && (expiry.IsZero() || time.Until(expiry) > time.Minute) {
		return token, nil
	}
	if err := e.Handshake(ctx); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionToken, nil
}

// doJSON issues a signed JSON request and decodes the response into out.
// Non-2xx responses are decoded as ErrorResponse when possible.
func (e *RemoteExecutor) doJSON(ctx context.Context, method, path string, body []byte, bearer string, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	AttachSignedHeaders(req, e.agentToken, body, time.Now())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var agentErr ErrorResponse
		if json.Unmarshal(raw, &agentErr) == nil && agentErr.Error != "" {
			return fmt.Errorf("agent returned %d (%s): %s", resp.StatusCode, agentErr.Code, agentErr.Error)
		}
		return fmt.Errorf("agent returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// materialize creates a DuckDB temp table from the remote response and
// returns *sql.Rows over it. Remote values arrive as JSON, so columns are
// typed VARCHAR; callers that need typed values cast in SQL.
func (e *RemoteExecutor) materialize(ctx context.Context, result ExecuteResponse) (*sql.Rows, error) {
	if len(result.Columns) == 0 {
		return e.localDB.QueryContext(ctx, "SELECT 1 WHERE false")
	}

	tableName := "_remote_result_" + randomSuffix()
	if err := e.populateTempTable(ctx, tableName, result); err != nil {
		return nil, err
	}

	selectSQL := fmt.Sprintf("SELECT * FROM %q", tableName) //nolint:gosec // tableName is generated internally
	rows, err := e.localDB.QueryContext(ctx, selectSQL)
	if err != nil {
		return nil, fmt.Errorf("select from temp: %w", err)
	}
	return rows, nil
}

// populateTempTable pins one connection for the DDL and inserts, then
// releases it so the follow-up SELECT comes from the pool.
func (e *RemoteExecutor) populateTempTable(ctx context.Context, tableName string, result ExecuteResponse) error {
	conn, err := e.localDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("pin connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	colDefs := make([]string, 0, len(result.Columns))
	for _, col := range result.Columns {
		colDefs = append(colDefs, fmt.Sprintf("%q VARCHAR", col))
	}
	createSQL := fmt.Sprintf("CREATE TABLE %q (%s)", tableName, strings.Join(colDefs, ", "))
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}

	if len(result.Rows) == 0 {
		return nil
	}

	placeholders := make([]string, len(result.Columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	insertSQL := fmt.Sprintf("INSERT INTO %q VALUES (%s)", tableName, strings.Join(placeholders, ", ")) //nolint:gosec // tableName is generated internally
	for _, row := range result.Rows {
		args := make([]interface{}, len(result.Columns))
		for i := range result.Columns {
			if i < len(row) && row[i] != nil {
				args[i] = fmt.Sprintf("%v", row[i])
			}
		}
		if _, err := conn.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}

// randomSuffix generates a random hex suffix for temp table names.
func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "fallback"
	}
	return hex.EncodeToString(b)
}
