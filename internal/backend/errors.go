package backend

import "fmt"

// AuthError reports a failed authentication attempt for a specific mode.
type AuthError struct {
	Mode    AuthMode
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Mode, e.Message)
}

// ConnectError reports a connectivity failure that is not an auth problem.
type ConnectError struct {
	Addr    string
	Message string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect to %s: %s", e.Addr, e.Message)
}

// QueryError reports a failed statement execution. The orchestrator recovers
// these locally by redirecting the turn into the error-narration branch.
type QueryError struct {
	Query   string
	Message string
}

func (e *QueryError) Error() string {
	return e.Message
}
