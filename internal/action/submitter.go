// internal/action/submitter.go
package action

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/transport"
	"github.com/sirupsen/logrus"
)

// MaxAttempts bounds how often one user intent is posted when the failure is transient.
const MaxAttempts = 2

// ErrDeclined is returned when the user backs out of a confirmation prompt.
var ErrDeclined = errors.New("action cancelled")

// ValidationError is a local rejection raised before any request is built.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// Kind classifies the error for transport.Classify.
func (e *ValidationError) Kind() transport.Kind { return transport.KindValidation }

// Poster sends a built action to the server.
type Poster interface {
	SubmitAction(ctx context.Context, req models.ActionRequest) (*models.ActionAck, error)
}

// VersionSource exposes the live state cursor.
type VersionSource interface {
	Version() int64
}

// Resyncer refreshes state outside the regular poll cadence.
type Resyncer interface {
	Resync(ctx context.Context) error
}

// Confirmer gates irreversible actions behind a yes/no prompt.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Params carries the per-type payload of an action.
type Params struct {
	Amount     int64
	RevealMask models.RevealMask
}

// Submitter builds idempotent action requests stamped with the live cursor.
type Submitter struct {
	post    Poster
	cursor  VersionSource
	resync  Resyncer
	confirm Confirmer
	log     *logrus.Entry

	newActionID func() string
}

// NewSubmitter wires a submitter. confirm may be nil, in which case all-in is refused.
func NewSubmitter(post Poster, cursor VersionSource, resync Resyncer, confirm Confirmer, logger *logrus.Entry) *Submitter {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Submitter{
		post:        post,
		cursor:      cursor,
		resync:      resync,
		confirm:     confirm,
		log:         logger.WithField("component", "action"),
		newActionID: NewActionID,
	}
}

// NewActionID returns "<unix millis>-<random hex>".
func NewActionID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), id[:12])
}

// Validate runs the local guards for t and p.
func Validate(t models.ActionType, p Params) error {
	if !t.Valid() {
		return &ValidationError{Message: fmt.Sprintf("unknown action %q", t)}
	}
	if t.NeedsAmount() && p.Amount <= 0 {
		return &ValidationError{Message: "enter a valid amount"}
	}
	if t == models.ActionReveal && !p.RevealMask.Valid() {
		return &ValidationError{Message: fmt.Sprintf("invalid reveal mask %d", p.RevealMask)}
	}
	return nil
}

// Submit validates, confirms when needed, posts the action and, once it is
// accepted, triggers exactly one resync.
func (s *Submitter) Submit(ctx context.Context, t models.ActionType, p Params) (*models.ActionAck, error) {
	if err := Validate(t, p); err != nil {
		return nil, err
	}

	if t == models.ActionAllIn {
		if s.confirm == nil {
			return nil, ErrDeclined
		}
		ok, err := s.confirm.Confirm(ctx, "Go all-in?")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrDeclined
		}
	}

	req := models.ActionRequest{
		ActionID:        s.newActionID(),
		Type:            t.Wire(),
		ExpectedVersion: s.cursor.Version(),
	}
	switch {
	case t.NeedsAmount():
		req.Amount = p.Amount
	case t == models.ActionReveal:
		mask := p.RevealMask
		req.RevealMask = &mask
	}

	entry := s.log.WithFields(logrus.Fields{
		"actionId":        req.ActionID,
		"type":            req.Type,
		"expectedVersion": req.ExpectedVersion,
	})

	ack, err := s.send(ctx, entry, req)
	if err != nil {
		entry.WithError(err).WithField("kind", transport.Classify(err)).Info("action rejected")
		return nil, err
	}
	entry.WithField("stateVersion", ack.StateVersion).Info("action accepted")

	if s.resync != nil {
		if rerr := s.resync.Resync(ctx); rerr != nil {
			entry.WithError(rerr).Warn("resync after action failed")
		}
	}
	return ack, nil
}

// send posts req, repeating the identical request on transient failures.
func (s *Submitter) send(ctx context.Context, entry *logrus.Entry, req models.ActionRequest) (*models.ActionAck, error) {
	var err error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		var ack *models.ActionAck
		ack, err = s.post.SubmitAction(ctx, req)
		if err == nil {
			if ack == nil {
				ack = &models.ActionAck{OK: true}
			}
			return ack, nil
		}
		if ctx.Err() != nil || transport.Classify(err) != transport.KindTransient {
			return nil, err
		}
		entry.WithError(err).WithField("attempt", attempt).Warn("transient action failure")
	}
	return nil, err
}
