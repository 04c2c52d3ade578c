// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

// RoundTrip implements http.RoundTripper.
func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// LogRoundTripper wraps next and logs every outgoing request using Logrus.
// Logs the method, path, status and duration of each request. Polls are chatty,
// so successful requests go to Debug and failures to Warn.
func LogRoundTripper(logger *logrus.Entry, next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		duration := time.Since(start)

		fields := logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": duration,
		}
		if err != nil {
			fields["error"] = err
			logger.WithFields(fields).Warn("HTTP request failed")
			return resp, err
		}
		fields["status"] = resp.StatusCode
		if resp.StatusCode >= 500 {
			logger.WithFields(fields).Warn("HTTP request")
		} else {
			logger.WithFields(fields).Debug("HTTP request")
		}
		return resp, nil
	})
}
