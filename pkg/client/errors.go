package client

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrProtocol marks a malformed success response from the worker, e.g. a
// create-deck reply missing its job identifier.
var ErrProtocol = errors.New("worker protocol error")

// APIError is a non-2xx response from the worker API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("worker API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("worker API error (status %d): %s", e.StatusCode, e.Message)
}

// decodeAPIError extracts a human-readable message from a worker error body.
// The worker wraps errors as {"detail": "..."} or {"detail": {"message": "..."}}.
func decodeAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return apiErr
	}

	var asString string
	if err := json.Unmarshal(payload.Detail, &asString); err == nil {
		apiErr.Message = asString
		return apiErr
	}

	var asObject struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload.Detail, &asObject); err == nil {
		apiErr.Message = asObject.Message
	}
	return apiErr
}
