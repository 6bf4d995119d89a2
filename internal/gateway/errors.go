package gateway

import "fmt"

// AuthError reports a failed token acquisition or a 401 that survived
// the one-shot token refresh retry.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("gateway auth: %s", e.Message)
}

// APIError is any non-auth provider rejection. Raw provider bodies are
// logged by the client, never returned to end users.
type APIError struct {
	HTTPStatus int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway api: status=%d code=%s %s", e.HTTPStatus, e.Code, e.Message)
}

// Permanent reports whether retrying the same call can ever succeed.
func (e *APIError) Permanent() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}
