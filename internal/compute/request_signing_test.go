package compute

import (
	"bytes"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newSignedRequest(t *testing.T, body []byte, token string, at time.Time) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "http://agent/execute", bytes.NewReader(body))
	require.NoError(t, err)
	AttachSignedHeaders(req, token, body, at)
	return req
}

func TestRequestSigning(t *testing.T) {
	body := []byte(`{"sql":"SELECT 1"}`)
	at := time.Now()

	t.Run("round_trip", func(t *testing.T) {
		req := newSignedRequest(t, body, "tok", at)
		require.NoError(t, VerifySignedHeaders(req, "tok", body, at, 30*time.Second))
	})

	t.Run("wrong_token", func(t *testing.T) {
		req := newSignedRequest(t, body, "tok", at)
		require.Error(t, VerifySignedHeaders(req, "other", body, at, 30*time.Second))
	})

	t.Run("tampered_body", func(t *testing.T) {
		req := newSignedRequest(t, body, "tok", at)
		require.Error(t, VerifySignedHeaders(req, "tok", []byte(`{"sql":"DROP TABLE x"}`), at, 30*time.Second))
	})

	t.Run("stale_timestamp", func(t *testing.T) {
		req := newSignedRequest(t, body, "tok", at.Add(-5*time.Minute))
		require.Error(t, VerifySignedHeaders(req, "tok", body, at, 30*time.Second))
	})

	t.Run("missing_headers", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, "http://agent/execute", bytes.NewReader(body))
		require.NoError(t, err)
		require.Error(t, VerifySignedHeaders(req, "tok", body, at, 30*time.Second))
	})
}

func TestSessionToken(t *testing.T) {
	now := time.Now()

	t.Run("round_trip", func(t *testing.T) {
		token, expiry, err := IssueSessionToken("agent-secret", "sess-1", now, time.Hour)
		require.NoError(t, err)
		require.WithinDuration(t, now.Add(time.Hour), expiry, time.Second)

		sid, err := VerifySessionToken("agent-secret", token)
		require.NoError(t, err)
		require.Equal(t, "sess-1", sid)
	})

	t.Run("wrong_secret", func(t *testing.T) {
		token, _, err := IssueSessionToken("agent-secret", "sess-1", now, time.Hour)
		require.NoError(t, err)

		_, err = VerifySessionToken("other-secret", token)
		require.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, _, err := IssueSessionToken("agent-secret", "sess-1", now.Add(-2*time.Hour), time.Hour)
		require.NoError(t, err)

		_, err = VerifySessionToken("agent-secret", token)
		require.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := VerifySessionToken("agent-secret", "not.a.token")
		require.Error(t, err)
	})
}
