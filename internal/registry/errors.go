package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthorized matches any APIError with status 401
var ErrUnauthorized = errors.New("unauthorized")

// APIError is a non-2xx answer from the conference backend
type APIError struct {
	StatusCode int
	// Detail is the backend's user-facing message, empty when none was sent
	Detail string
	Body   string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Detail returns the backend-provided message carried by err, or "" when
// err is not an APIError or the backend sent none
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

// parseAPIError builds an APIError from a response body. The backend sends
// {"detail": "..."}; validation failures carry a list of objects with "msg".
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: strings.TrimSpace(string(body))}

	var envelope struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}

	var detail string
	if err := json.Unmarshal(envelope.Detail, &detail); err == nil {
		apiErr.Detail = detail
		return apiErr
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(envelope.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		apiErr.Detail = strings.Join(msgs, "; ")
	}
	return apiErr
}
