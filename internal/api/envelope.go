package api

import (
	"github.com/danielgtaylor/huma/v2"
)

// envelopeVersion is the wire protocol version clients negotiate on.
// Bump only for breaking envelope shape changes.
const envelopeVersion = 1

// Envelope is the versioned wrapper around every JSON response body.
// Success responses carry data; simple errors carry a flat error
// string; detailed errors carry code, message, and details. The
// version field must stay named "v" because deployed e-reader clients
// parse it positionally before anything else.
type Envelope struct {
	V       int    `json:"v"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// EnvelopeTransformer wraps response bodies in the versioned envelope.
// Registered as a huma transformer so handlers return bare DTOs and
// never see the wrapper.
func EnvelopeTransformer(ctx huma.Context, status string, v any) (any, error) {
	env := &Envelope{V: envelopeVersion}

	switch err := v.(type) {
	case *APIError:
		if err.Code != "" || err.Details != nil {
			env.Code = err.Code
			env.Message = err.Message
			env.Details = err.Details
		} else {
			env.Error = err.Message
		}
		return env, nil
	case huma.StatusError:
		env.Error = err.Error()
		return env, nil
	}

	env.Success = true
	env.Data = v
	return env, nil
}
