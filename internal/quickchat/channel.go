// internal/quickchat/channel.go
package quickchat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/transport"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultEchoTTL      = 5000 * time.Millisecond
	DefaultCooldown     = 6000 * time.Millisecond
)

// Client is the quick-chat half of the room API.
type Client interface {
	PollQuickChats(ctx context.Context, sinceEventID int64) (*models.QuickChatPoll, error)
	SendQuickChat(ctx context.Context, req models.QuickChatRequest) (*models.QuickChatAck, error)
}

// Config wires a Channel.
type Config struct {
	ViewerID   string
	ViewerName string

	PollInterval    time.Duration
	EchoTTL         time.Duration
	DefaultCooldown time.Duration
	SeenCap         int

	Clock  clockwork.Clock
	Logger *logrus.Entry

	// OnChange fires whenever the set of active bubbles changes.
	OnChange func()
	// OnEvent fires once for every accepted server event.
	OnEvent func(models.BroadcastEvent)
	// OnError receives background poll failures.
	OnError func(error)

	NewActionID func() string
}

type slot struct {
	event models.BroadcastEvent
	timer clockwork.Timer
}

// Channel polls quick-chat events, keeps at most one active bubble per sender
// and expires bubbles against the server clock.
type Channel struct {
	client Client
	cfg    Config
	log    *logrus.Entry

	pollMu sync.Mutex

	mu        sync.Mutex
	cursor    int64
	seen      *SeenSet
	slots     map[string]*slot
	phrases   []string
	phraseSet map[string]struct{}
	cooldown  time.Duration
	echoTTL   time.Duration
	localSeq  int64

	running   bool
	closed    bool
	epoch     uint64
	gen       uint64
	pollTimer clockwork.Timer
	loopCtx   context.Context
	cancel    context.CancelFunc
}

// New builds an idle channel.
func New(client Client, cfg Config) *Channel {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.EchoTTL <= 0 {
		cfg.EchoTTL = DefaultEchoTTL
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = DefaultCooldown
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.NewActionID == nil {
		cfg.NewActionID = func() string { return "qc-" + uuid.NewString() }
	}
	return &Channel{
		client:   client,
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "quickchat"),
		seen:     NewSeenSet(cfg.SeenCap),
		slots:    make(map[string]*slot),
		cooldown: cfg.DefaultCooldown,
		echoTTL:  cfg.EchoTTL,
	}
}

// NormalizePhrase canonicalizes a phrase id the way the server does.
func NormalizePhrase(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Start fetches everything since event 0, then arms the repeating poll. A
// failed initial fetch is reported and returned but the loop is armed anyway.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.closed = false
	c.loopCtx, c.cancel = context.WithCancel(ctx)
	loopCtx := c.loopCtx
	c.mu.Unlock()

	err := c.Poll(loopCtx)
	if err != nil {
		c.report(err)
	}
	c.schedule()
	c.log.Info("quick chat started")
	return err
}

// Stop cancels the poll timer and every expiry timer, then forgets all
// events, slots and the cursor.
func (c *Channel) Stop() {
	c.mu.Lock()
	if c.pollTimer != nil {
		c.pollTimer.Stop()
		c.pollTimer = nil
	}
	for user, s := range c.slots {
		s.timer.Stop()
		delete(c.slots, user)
	}
	c.seen.Reset()
	c.cursor = 0
	c.epoch++
	c.gen++
	c.closed = true
	wasRunning := c.running
	c.running = false
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()

	if wasRunning {
		c.log.Info("quick chat stopped")
	}
}

// Cursor is the last event id acknowledged by the server.
func (c *Channel) Cursor() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor
}

// Cooldown is the most recent server cooldown hint.
func (c *Channel) Cooldown() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cooldown
}

// Phrases is the catalog from the last poll that carried one.
func (c *Channel) Phrases() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.phrases))
	copy(out, c.phrases)
	return out
}

// Active returns the live bubble of every sender, ordered by user id. It has
// no side effects and can back any number of re-renders.
func (c *Channel) Active() []models.BroadcastEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.BroadcastEvent, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, s.event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Poll fetches events past the cursor and applies them. Polls never overlap.
func (c *Channel) Poll(ctx context.Context) error {
	c.pollMu.Lock()
	defer c.pollMu.Unlock()

	c.mu.Lock()
	since := c.cursor
	epoch := c.epoch
	c.mu.Unlock()

	res, err := c.client.PollQuickChats(ctx, since)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if epoch != c.epoch {
		// torn down while the request was in flight
		c.mu.Unlock()
		return nil
	}
	if res.CooldownMs > 0 {
		c.cooldown = time.Duration(res.CooldownMs) * time.Millisecond
	}
	if res.BubbleTTLMs > 0 {
		c.echoTTL = time.Duration(res.BubbleTTLMs) * time.Millisecond
	}
	if len(res.Phrases) > 0 {
		c.setPhrases(res.Phrases)
	}

	ref := res.ServerNowMs
	if ref <= 0 {
		ref = c.cfg.Clock.Now().UnixMilli()
	}
	events := make([]models.BroadcastEvent, len(res.Events))
	copy(events, res.Events)
	sort.SliceStable(events, func(i, j int) bool { return events[i].EventID < events[j].EventID })

	var accepted []models.BroadcastEvent
	for _, ev := range events {
		if c.accept(ev, ref) {
			accepted = append(accepted, ev)
		}
	}
	if res.LatestEventID > c.cursor {
		c.cursor = res.LatestEventID
	}
	c.mu.Unlock()

	if len(accepted) > 0 {
		c.log.WithFields(logrus.Fields{
			"count":  len(accepted),
			"cursor": res.LatestEventID,
		}).Debug("quick chat events applied")
		if c.cfg.OnEvent != nil {
			for _, ev := range accepted {
				c.cfg.OnEvent(ev)
			}
		}
		c.notify()
	}
	return nil
}

// Send echoes the phrase locally and posts it. On rejection the echo is
// withdrawn; a cooldown rejection comes back as *CooldownError.
func (c *Channel) Send(ctx context.Context, phraseID string) (*models.QuickChatAck, error) {
	phrase := NormalizePhrase(phraseID)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrStopped
	}
	if phrase == "" {
		c.mu.Unlock()
		return nil, &ValidationError{}
	}
	if len(c.phraseSet) > 0 {
		if _, ok := c.phraseSet[phrase]; !ok {
			c.mu.Unlock()
			return nil, &ValidationError{PhraseID: phrase}
		}
	}
	now := c.cfg.Clock.Now().UnixMilli()
	c.localSeq--
	echo := models.BroadcastEvent{
		EventID:     c.localSeq,
		UserID:      c.cfg.ViewerID,
		Username:    c.cfg.ViewerName,
		PhraseID:    phrase,
		CreatedAtMs: now,
		ExpireAtMs:  now + c.echoTTL.Milliseconds(),
	}
	echoed := c.accept(echo, now)
	c.mu.Unlock()
	if echoed {
		c.notify()
	}

	req := models.QuickChatRequest{ActionID: c.cfg.NewActionID(), PhraseID: phrase}
	ack, err := c.client.SendQuickChat(ctx, req)
	if err != nil {
		if c.retract(echo.UserID, echo.EventID) {
			c.notify()
		}
		entry := c.log.WithError(err).WithField("phraseId", phrase)
		if transport.IsCooldown(err) {
			wait := c.retryAfter(err)
			entry.WithField("retryAfter", wait).Info("quick chat rate limited")
			return nil, &CooldownError{RetryAfter: wait, Cause: err}
		}
		entry.WithField("kind", transport.Classify(err)).Warn("quick chat send failed")
		return nil, err
	}
	if ack == nil {
		ack = &models.QuickChatAck{OK: true}
	}
	if ack.CooldownMs > 0 {
		c.mu.Lock()
		c.cooldown = time.Duration(ack.CooldownMs) * time.Millisecond
		c.mu.Unlock()
	}
	c.log.WithFields(logrus.Fields{"phraseId": phrase, "eventId": ack.ChatEventID}).Debug("quick chat sent")
	return ack, nil
}

// accept applies one event to its sender's slot. Caller holds c.mu.
func (c *Channel) accept(ev models.BroadcastEvent, refMs int64) bool {
	if c.seen.Has(ev.EventID) {
		return false
	}
	if c.seen.Add(ev.EventID) {
		c.log.WithField("cap", c.seen.cap).Debug("seen set cleared")
	}

	user := ev.UserID
	if cur, ok := c.slots[user]; ok {
		if cur.event.EventID > 0 && ev.EventID > 0 && cur.event.EventID > ev.EventID {
			return false
		}
		cur.timer.Stop()
	}

	ttl := time.Duration(ev.ExpireAtMs-refMs) * time.Millisecond
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	s := &slot{event: ev}
	id := ev.EventID
	s.timer = c.cfg.Clock.AfterFunc(ttl, func() { c.expire(user, id, s) })
	c.slots[user] = s
	return true
}

// expire clears a sender's slot if it still holds the event the timer was armed for.
func (c *Channel) expire(user string, eventID int64, s *slot) {
	c.mu.Lock()
	cur, ok := c.slots[user]
	if !ok || cur != s || cur.event.EventID != eventID {
		c.mu.Unlock()
		return
	}
	delete(c.slots, user)
	c.mu.Unlock()
	c.notify()
}

// retract withdraws a local echo that is still on display.
func (c *Channel) retract(user string, eventID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur, ok := c.slots[user]
	if !ok || cur.event.EventID != eventID {
		return false
	}
	cur.timer.Stop()
	delete(c.slots, user)
	return true
}

// retryAfter reads the server's wait hint and remembers it as the cooldown,
// falling back to the last known cooldown when the reply carries none.
func (c *Channel) retryAfter(err error) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var te *transport.Error
	if errors.As(err, &te) {
		if ms, ok := te.Int64("retryAfterMs"); ok && ms > 0 {
			c.cooldown = time.Duration(ms) * time.Millisecond
		}
	}
	return c.cooldown
}

func (c *Channel) setPhrases(list []string) {
	c.phrases = c.phrases[:0]
	c.phraseSet = make(map[string]struct{}, len(list))
	for _, p := range list {
		p = NormalizePhrase(p)
		if p == "" {
			continue
		}
		if _, dup := c.phraseSet[p]; dup {
			continue
		}
		c.phraseSet[p] = struct{}{}
		c.phrases = append(c.phrases, p)
	}
}

func (c *Channel) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	if c.pollTimer != nil {
		c.pollTimer.Stop()
	}
	c.gen++
	gen := c.gen
	c.pollTimer = c.cfg.Clock.AfterFunc(c.cfg.PollInterval, func() {
		c.mu.Lock()
		stale := gen != c.gen || !c.running
		ctx := c.loopCtx
		c.mu.Unlock()
		if stale {
			return
		}
		c.tick(ctx)
	})
}

func (c *Channel) tick(ctx context.Context) {
	err := c.Poll(ctx)
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.report(err)
	}
	c.schedule()
}

func (c *Channel) report(err error) {
	c.log.WithError(err).WithField("kind", transport.Classify(err)).Warn("quick chat poll failed")
	if c.cfg.OnError != nil {
		c.cfg.OnError(err)
	}
}

func (c *Channel) notify() {
	if c.cfg.OnChange != nil {
		c.cfg.OnChange()
	}
}
