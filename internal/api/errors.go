package api

import "fmt"

// APIError is a failure the backend itself reported: either an explicit
// success:false envelope (App=true) or a non-2xx HTTP status. It survives
// the executor's retries unchanged so callers can classify it.
type APIError struct {
	StatusCode int    // 0 for application-level failures on a 2xx response
	Message    string // server-supplied message when available
	App        bool   // true when the server answered but declared failure
}

func (e *APIError) Error() string {
	if e.App {
		return e.Message
	}
	if e.Message != "" {
		return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: status %d", e.StatusCode)
}

// IsApplicationError reports whether err is a server-declared failure
// (the backend responded, the request was understood, the answer was no).
func IsApplicationError(err error) bool {
	apiErr, ok := AsAPIError(err)
	return ok && apiErr.App
}

// AsAPIError unwraps err to an *APIError if one is in the chain.
func AsAPIError(err error) (*APIError, bool) {
	for err != nil {
		if apiErr, ok := err.(*APIError); ok {
			return apiErr, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
