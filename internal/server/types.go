package server

import (
	"encoding/json"
	"strings"
	"time"
)

// apiResponse is the body of the send-message endpoint.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type sendMessageRequest struct {
	Message json.RawMessage `json:"message"`
}

type isActiveResponse struct {
	UserID string `json:"userID"`
	Active bool   `json:"active"`
}

// friendStatus is one entry of the online-users response.
type friendStatus struct {
	UserID     string     `json:"userID"`
	Online     bool       `json:"online"`
	LastActive *time.Time `json:"last_active"`
}

type onlineUsersResponse struct {
	Friends []friendStatus `json:"friends"`
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
