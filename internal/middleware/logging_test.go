package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogRoundTripperLogsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	hc := &http.Client{Transport: LogRoundTripper(logrus.NewEntry(logger), nil)}
	resp, err := hc.Get(srv.URL + "/api/v1/rooms/r-1/state")
	require.NoError(t, err)
	resp.Body.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "/api/v1/rooms/r-1/state", entry.Data["path"])
	assert.Equal(t, http.StatusTeapot, entry.Data["status"])
}

func TestLogRoundTripperLogsFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	boom := errors.New("connection refused")
	rt := LogRoundTripper(logrus.NewEntry(logger), RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, boom
	}))

	req := httptest.NewRequest(http.MethodPost, "http://example.invalid/api/v1/rooms/r-1/actions", nil)
	_, err := rt.RoundTrip(req)
	assert.ErrorIs(t, err, boom)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, boom, entry.Data["error"])
}
