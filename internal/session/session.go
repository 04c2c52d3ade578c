// internal/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jason-s-yu/tablesync/internal/action"
	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/quickchat"
	"github.com/jason-s-yu/tablesync/internal/render"
	"github.com/jason-s-yu/tablesync/internal/statesync"
	"github.com/jason-s-yu/tablesync/internal/transport"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// recordTimeout bounds one push to the historian queue.
const recordTimeout = 2 * time.Second

// ErrDisposed is returned by every operation on a disposed session.
var ErrDisposed = errors.New("session disposed")

// RoomAPI is the set of room endpoints a session drives.
type RoomAPI interface {
	statesync.Fetcher
	action.Poster
	quickchat.Client
	Start(ctx context.Context) error
	NextHand(ctx context.Context) error
	Leave(ctx context.Context) error
}

// Recorder receives a trace of every accepted snapshot, quick-chat event and action.
type Recorder interface {
	Record(ctx context.Context, record models.SyncRecord) error
}

// Notice is a user-facing message produced by a failed operation.
type Notice struct {
	Kind    transport.Kind
	Message string
}

// Options configures a Session.
type Options struct {
	RoomID     string
	ViewerID   string
	ViewerName string

	FastPoll      time.Duration
	SlowPoll      time.Duration
	QuickChatPoll time.Duration

	Clock     clockwork.Clock
	Logger    *logrus.Entry
	Confirmer action.Confirmer
	Recorder  Recorder

	// OnUpdate receives a fresh view after every state or bubble change.
	OnUpdate func(render.View)
	// OnNotice receives failures worth showing the user.
	OnNotice func(Notice)
}

// Session owns the state loop, the quick-chat loop and the action submitter
// for one viewer in one room.
type Session struct {
	api  RoomAPI
	opts Options
	log  *logrus.Entry

	state   *statesync.Engine
	chat    *quickchat.Channel
	actions *action.Submitter

	renderMu sync.Mutex

	mu       sync.Mutex
	started  bool
	disposed bool
}

// New wires a session. Nothing runs until Start.
func New(api RoomAPI, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		api:  api,
		opts: opts,
		log: opts.Logger.WithFields(logrus.Fields{
			"room":   opts.RoomID,
			"viewer": opts.ViewerID,
		}),
	}

	s.state = statesync.New(api, statesync.Config{
		ViewerID:   opts.ViewerID,
		Fast:       opts.FastPoll,
		Slow:       opts.SlowPoll,
		Clock:      opts.Clock,
		Logger:     s.log,
		OnSnapshot: s.onSnapshot,
		OnError:    s.onLoopError,
	})
	s.chat = quickchat.New(api, quickchat.Config{
		ViewerID:     opts.ViewerID,
		ViewerName:   opts.ViewerName,
		PollInterval: opts.QuickChatPoll,
		Clock:        opts.Clock,
		Logger:       s.log,
		OnChange:     s.render,
		OnEvent:      s.onChatEvent,
		OnError:      s.onLoopError,
	})
	s.actions = action.NewSubmitter(api, s.state, s.state, opts.Confirmer, s.log)
	return s
}

// Start launches both loops. The quick-chat catalog is fetched before Start returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.log.Info("session starting")
	s.state.Start(ctx)
	if err := s.chat.Start(ctx); err != nil {
		s.log.WithError(err).Warn("initial quick chat fetch failed")
	}
	return nil
}

// Stop cancels every timer of both loops. The state cursor is kept so a later
// Start resumes from it.
func (s *Session) Stop() {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.mu.Unlock()

	s.state.Stop()
	s.chat.Stop()
	if wasStarted {
		s.log.Info("session stopped")
	}
}

// Dispose stops the session for good and drops all state.
func (s *Session) Dispose() {
	s.Stop()
	s.mu.Lock()
	s.disposed = true
	s.mu.Unlock()
	s.state.Dispose()
}

// Leave tears the session down before telling the server. The call is made once.
func (s *Session) Leave(ctx context.Context) error {
	if err := s.alive(); err != nil {
		return err
	}
	s.Dispose()
	if err := s.api.Leave(ctx); err != nil {
		s.notice(err)
		return fmt.Errorf("leave room: %w", err)
	}
	s.log.Info("left room")
	return nil
}

// Act submits a betting action. amount is used by bet and raise only.
func (s *Session) Act(ctx context.Context, t models.ActionType, amount int64) (*models.ActionAck, error) {
	return s.submit(ctx, t, action.Params{Amount: amount})
}

// Reveal chooses which hole cards to show once the hand is over.
func (s *Session) Reveal(ctx context.Context, mask models.RevealMask) (*models.ActionAck, error) {
	return s.submit(ctx, models.ActionReveal, action.Params{RevealMask: mask})
}

func (s *Session) submit(ctx context.Context, t models.ActionType, p action.Params) (*models.ActionAck, error) {
	if err := s.alive(); err != nil {
		return nil, err
	}
	ack, err := s.actions.Submit(ctx, t, p)
	if err != nil {
		if !errors.Is(err, action.ErrDeclined) {
			s.notice(err)
		}
		return nil, err
	}
	payload := map[string]interface{}{"type": string(t)}
	if t.NeedsAmount() {
		payload["amount"] = p.Amount
	}
	if t == models.ActionReveal {
		payload["revealMask"] = int(p.RevealMask)
	}
	s.record(models.SyncRecord{Kind: models.RecordAction, Version: ack.StateVersion, Payload: payload})
	return ack, nil
}

// Say broadcasts a quick-chat phrase.
func (s *Session) Say(ctx context.Context, phraseID string) error {
	if err := s.alive(); err != nil {
		return err
	}
	if _, err := s.chat.Send(ctx, phraseID); err != nil {
		s.notice(err)
		return err
	}
	return nil
}

// StartGame deals the first hand. Owner only.
func (s *Session) StartGame(ctx context.Context) error {
	return s.ownerCall(ctx, "start game", s.api.Start)
}

// NextHand deals the next hand. Owner only.
func (s *Session) NextHand(ctx context.Context) error {
	return s.ownerCall(ctx, "next hand", s.api.NextHand)
}

func (s *Session) ownerCall(ctx context.Context, what string, call func(context.Context) error) error {
	if err := s.alive(); err != nil {
		return err
	}
	if err := call(ctx); err != nil {
		s.notice(err)
		return fmt.Errorf("%s: %w", what, err)
	}
	if err := s.state.Resync(ctx); err != nil {
		s.log.WithError(err).Warn("resync failed after " + what)
	}
	return nil
}

// View projects the current snapshot and bubbles.
func (s *Session) View() render.View {
	return render.Project(s.state.Snapshot(), s.opts.ViewerID, s.chat.Active())
}

// Version is the current state cursor.
func (s *Session) Version() int64 { return s.state.Version() }

// Phrases is the quick-chat catalog.
func (s *Session) Phrases() []string { return s.chat.Phrases() }

func (s *Session) alive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	return nil
}

func (s *Session) render() {
	if s.opts.OnUpdate == nil {
		return
	}
	s.renderMu.Lock()
	defer s.renderMu.Unlock()
	s.opts.OnUpdate(s.View())
}

func (s *Session) onSnapshot(snap *models.StateSnapshot) {
	s.record(models.SyncRecord{
		Kind:    models.RecordSnapshot,
		Version: snap.StateVersion,
		Payload: map[string]interface{}{
			"roomStatus": string(snap.RoomStatus),
			"inHand":     snap.Game != nil,
		},
	})
	s.render()
}

func (s *Session) onChatEvent(ev models.BroadcastEvent) {
	s.record(models.SyncRecord{
		Kind:    models.RecordQuickChat,
		UserID:  ev.UserID,
		EventID: ev.EventID,
		Payload: map[string]interface{}{"phraseId": ev.PhraseID},
	})
}

// onLoopError surfaces everything but transient failures, which the loops
// recover from on their own.
func (s *Session) onLoopError(err error) {
	if transport.Classify(err) == transport.KindTransient {
		return
	}
	s.notice(err)
}

func (s *Session) notice(err error) {
	kind := transport.Classify(err)
	var msg string
	switch kind {
	case transport.KindStale:
		msg = "action rejected: " + err.Error()
	case transport.KindAuth:
		msg = "session expired, please log in again"
	case transport.KindTransient:
		msg = "network problem: " + err.Error()
	default:
		msg = err.Error()
	}
	s.log.WithField("kind", kind).Debug(msg)
	if s.opts.OnNotice != nil {
		s.opts.OnNotice(Notice{Kind: kind, Message: msg})
	}
}

func (s *Session) record(rec models.SyncRecord) {
	if s.opts.Recorder == nil {
		return
	}
	rec.RoomID = s.opts.RoomID
	if rec.UserID == "" {
		rec.UserID = s.opts.ViewerID
	}
	rec.Timestamp = s.opts.Clock.Now().UnixMilli()

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := s.opts.Recorder.Record(ctx, rec); err != nil {
		s.log.WithError(err).WithField("kind", rec.Kind).Warn("failed to record sync event")
	}
}
