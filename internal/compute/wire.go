package compute

// Wire types shared by the remote executor client (remote.go) and the agent
// handler (internal/agent/handler.go) so the contract stays in sync at
// compile time.

// HandshakeRequest is the JSON body sent to POST /session on a compute agent.
type HandshakeRequest struct {
	ClientID string `json:"client_id"`
}

// HandshakeResponse is returned from a successful handshake. The session
// token is a short-lived JWT presented as a bearer token on later requests.
type HandshakeResponse struct {
	SessionID    string `json:"session_id"`
	SessionToken string `json:"session_token"`
	ExpiresAt    string `json:"expires_at"`
}

// ExecuteRequest is the JSON body sent to POST /execute on a compute agent.
type ExecuteRequest struct {
	SQL       string `json:"sql"`
	RequestID string `json:"request_id"`
}

// ExecuteResponse is the JSON body returned from POST /execute on success.
type ExecuteResponse struct {
	Columns   []string        `json:"columns"`
	Rows      [][]interface{} `json:"rows"`
	RowCount  int             `json:"row_count"`
	RequestID string          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
	Code      string          `json:"code,omitempty"`
}

// ErrorResponse is the JSON error body returned by the agent on failures.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// Agent error codes.
const (
	CodeAuthError      = "AUTH_ERROR"
	CodeParseError     = "PARSE_ERROR"
	CodeExecutionError = "EXECUTION_ERROR"
	CodeSessionError   = "SESSION_ERROR"
)
