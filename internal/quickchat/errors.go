package quickchat

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jason-s-yu/tablesync/internal/transport"
)

// ErrStopped is returned by Send after the channel was torn down.
var ErrStopped = errors.New("quick chat stopped")

// ValidationError rejects a phrase before anything is sent.
type ValidationError struct {
	PhraseID string
}

func (e *ValidationError) Error() string {
	if e.PhraseID == "" {
		return "choose a phrase"
	}
	return fmt.Sprintf("unknown phrase %q", e.PhraseID)
}

func (e *ValidationError) Kind() transport.Kind { return transport.KindValidation }

// CooldownError is a server rate-limit rejection with the advisory wait.
type CooldownError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("quick chat cooling down, try again in ~%d seconds", Seconds(e.RetryAfter))
}

func (e *CooldownError) Unwrap() error { return e.Cause }

func (e *CooldownError) Kind() transport.Kind { return transport.KindRateLimit }

// Seconds rounds d up to whole seconds, never below one.
func Seconds(d time.Duration) int {
	n := int(math.Ceil(d.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}
