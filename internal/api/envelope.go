package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// envelope is the optional wrapping some endpoints apply to their payload.
// Success is a pointer so a bare object that happens to lack the field is
// distinguishable from an explicit success:false.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// unwrapEnvelope normalizes the two response shapes the backend produces:
// a bare JSON value, or {success, data, error}. Nested data is preferred
// when present; an explicit success:false becomes an *APIError carrying
// the server's message. All shape checks live here, nowhere else.
func unwrapEnvelope(body []byte, out interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		if out == nil {
			return nil
		}
		return fmt.Errorf("empty response body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// not an object (e.g. a bare array): use the payload directly
		if out == nil {
			return nil
		}
		return json.Unmarshal(body, out)
	}

	if env.Success != nil && !*env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{App: true, Message: msg}
	}

	if len(env.Data) > 0 && string(env.Data) != "null" {
		if out == nil {
			return nil
		}
		return json.Unmarshal(env.Data, out)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

// unmarshalLoose unmarshals body into out, tolerating an empty body.
func unmarshalLoose(body []byte, out interface{}) error {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	return json.Unmarshal(body, out)
}
