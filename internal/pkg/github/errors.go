package github

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// APIError is a non-2xx answer from the GitHub REST API.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("GitHub API error: %s %s: %d %s", e.Method, e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("GitHub API error: %s %s: %d", e.Method, e.URL, e.StatusCode)
}

// IsConflict reports a rejected write precondition (stale blob sha).
func (e *APIError) IsConflict() bool {
	return e.StatusCode == http.StatusConflict || e.StatusCode == http.StatusUnprocessableEntity
}

func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

func checkResponse(resp *resty.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	apiErr := &APIError{
		Method:     resp.Request.Method,
		URL:        resp.Request.URL,
		StatusCode: resp.StatusCode(),
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}
