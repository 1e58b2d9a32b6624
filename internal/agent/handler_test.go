package agent

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/mallard-db/mallard/internal/compute"
)

const testAgentToken = "test-agent-token"

func newTestAgent(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	srv := httptest.NewServer(NewHandler(HandlerConfig{
		DB:         db,
		AgentToken: testAgentToken,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signedPost(t *testing.T, url, path string, body []byte, bearer string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	compute.AttachSignedHeaders(req, testAgentToken, body, time.Now())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func openSession(t *testing.T, url string) compute.HandshakeResponse {
	t.Helper()
	body, err := json.Marshal(compute.HandshakeRequest{ClientID: "test-client"})
	require.NoError(t, err)

	resp := signedPost(t, url, "/session", body, "")
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hs compute.HandshakeResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hs))
	require.NotEmpty(t, hs.SessionID)
	require.NotEmpty(t, hs.SessionToken)
	return hs
}

func TestHandler_Session(t *testing.T) {
	srv := newTestAgent(t)

	t.Run("handshake_issues_token", func(t *testing.T) {
		hs := openSession(t, srv.URL)

		sid, err := compute.VerifySessionToken(testAgentToken, hs.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, hs.SessionID, sid)
	})

	t.Run("unsigned_handshake_rejected", func(t *testing.T) {
		body, _ := json.Marshal(compute.HandshakeRequest{ClientID: "test-client"})
		resp, err := http.Post(srv.URL+"/session", "application/json", bytes.NewReader(body))
		require.NoError(t, err)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("close_revokes_session", func(t *testing.T) {
		hs := openSession(t, srv.URL)

		req, err := http.NewRequest(http.MethodDelete, srv.URL+"/session", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+hs.SessionToken)
		compute.AttachSignedHeaders(req, testAgentToken, nil, time.Now())
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// The revoked token no longer authorizes execution.
		body, _ := json.Marshal(compute.ExecuteRequest{SQL: "SELECT 1"})
		resp = signedPost(t, srv.URL, "/execute", body, hs.SessionToken)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHandler_Execute(t *testing.T) {
	srv := newTestAgent(t)
	hs := openSession(t, srv.URL)

	t.Run("returns_rows", func(t *testing.T) {
		body, err := json.Marshal(compute.ExecuteRequest{SQL: "SELECT * FROM (VALUES (1, 'a'), (2, 'b')) AS t(id, name) ORDER BY id"})
		require.NoError(t, err)

		resp := signedPost(t, srv.URL, "/execute", body, hs.SessionToken)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result compute.ExecuteResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, []string{"id", "name"}, result.Columns)
		assert.Equal(t, 2, result.RowCount)
		require.Len(t, result.Rows, 2)
		assert.Equal(t, "a", result.Rows[0][1])
	})

	t.Run("invalid_sql_reports_execution_error", func(t *testing.T) {
		body, err := json.Marshal(compute.ExecuteRequest{SQL: "SELEKT nope"})
		require.NoError(t, err)

		resp := signedPost(t, srv.URL, "/execute", body, hs.SessionToken)
		defer func() { _ = resp.Body.Close() }()
		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var agentErr compute.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&agentErr))
		assert.Equal(t, compute.CodeExecutionError, agentErr.Code)
	})

	t.Run("missing_bearer_rejected", func(t *testing.T) {
		body, _ := json.Marshal(compute.ExecuteRequest{SQL: "SELECT 1"})
		resp := signedPost(t, srv.URL, "/execute", body, "")
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("forged_bearer_rejected", func(t *testing.T) {
		forged, _, err := compute.IssueSessionToken("wrong-secret", "sess-x", time.Now(), time.Hour)
		require.NoError(t, err)

		body, _ := json.Marshal(compute.ExecuteRequest{SQL: "SELECT 1"})
		resp := signedPost(t, srv.URL, "/execute", body, forged)
		defer func() { _ = resp.Body.Close() }()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestHandler_RemoteExecutorRoundTrip(t *testing.T) {
	srv := newTestAgent(t)

	localDB, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = localDB.Close() })

	exec := compute.NewRemoteExecutor(srv.URL, testAgentToken, "round-trip", localDB, 10*time.Second)
	ctx := context.Background()
	require.NoError(t, exec.Handshake(ctx))
	require.NotEmpty(t, exec.SessionID())

	rows, err := exec.QueryContext(ctx, "SELECT * FROM (VALUES (1, 'x'), (2, 'y')) AS t(id, tag) ORDER BY id")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var got []string
	for rows.Next() {
		var id, tag string
		require.NoError(t, rows.Scan(&id, &tag))
		got = append(got, id+tag)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"1x", "2y"}, got)

	require.NoError(t, exec.Ping(ctx))
	require.NoError(t, exec.CloseSession(ctx))
}

func TestHandler_Health(t *testing.T) {
	srv := newTestAgent(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "duckdb_version")
}
