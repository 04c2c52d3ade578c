// internal/transport/errors.go
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrUnauthenticated is returned when no caller identity is available, and is
// matched by any 401 reply from the server.
var ErrUnauthenticated = errors.New("unauthenticated")

// Error is a server rejection normalized from a non-2xx reply.
type Error struct {
	Status  int
	Message string
	// Detail holds every other field of the JSON error body.
	Detail map[string]interface{}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthenticated) match 401 replies.
func (e *Error) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

// Int64 reads a numeric detail field. JSON numbers decode as float64.
func (e *Error) Int64(key string) (int64, bool) {
	if e == nil || e.Detail == nil {
		return 0, false
	}
	switch v := e.Detail[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// Kind is the failure taxonomy shared by every loop and submitter.
type Kind string

const (
	KindTransient  Kind = "transient"
	KindStale      Kind = "stale"
	KindValidation Kind = "validation"
	KindRateLimit  Kind = "rate_limit"
	KindAuth       Kind = "auth"
)

// kinder is implemented by local errors that know their own classification.
type kinder interface {
	Kind() Kind
}

// Classify maps an error onto the failure taxonomy. Anything without an HTTP
// status (timeouts, refused connections, decode failures) is transient.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinder
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, ErrUnauthenticated) {
		return KindAuth
	}
	var te *Error
	if errors.As(err, &te) {
		switch {
		case IsCooldown(err):
			return KindRateLimit
		case te.Status >= 500:
			return KindTransient
		case te.Status >= 400:
			return KindStale
		}
	}
	return KindTransient
}

// IsCooldown reports whether err is a server rate-limit rejection.
func IsCooldown(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == http.StatusTooManyRequests || strings.Contains(strings.ToLower(te.Message), "cooldown")
}

// IsConflict reports whether err is an optimistic-concurrency rejection.
func IsConflict(err error) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Status == http.StatusConflict || strings.Contains(strings.ToLower(te.Message), "version conflict")
}
