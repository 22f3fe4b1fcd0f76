package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/and161185/nftmarket/internal/errs"
)

// HTTPError is returned for every non-2xx response.
type HTTPError struct {
	Method  string
	Path    string
	Status  int
	Message string // server-provided message, if the body carried one
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Is maps well-known statuses onto the shared sentinels.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case errs.ErrNotFound:
		return e.Status == http.StatusNotFound
	case errs.ErrUnauthorized:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case errs.ErrRateLimited:
		return e.Status == http.StatusTooManyRequests
	}
	return false
}

// errorMessage extracts {message} / {error} / {detail} from an error body.
func errorMessage(body []byte) string {
	var p struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &p) != nil {
		return ""
	}
	switch {
	case p.Message != "":
		return p.Message
	case p.Error != "":
		return p.Error
	default:
		return p.Detail
	}
}
