package quickchat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jason-s-yu/tablesync/internal/models"
	"github.com/jason-s-yu/tablesync/internal/transport"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pollReply struct {
	res *models.QuickChatPoll
	err error
}

type fakeClient struct {
	mu      sync.Mutex
	polls   []pollReply
	since   []int64
	sent    []models.QuickChatRequest
	sendErr error
	ack     *models.QuickChatAck
}

func (f *fakeClient) PollQuickChats(_ context.Context, since int64) (*models.QuickChatPoll, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.since = append(f.since, since)
	if len(f.polls) == 0 {
		return &models.QuickChatPoll{LatestEventID: since}, nil
	}
	r := f.polls[0]
	f.polls = f.polls[1:]
	return r.res, r.err
}

func (f *fakeClient) SendQuickChat(_ context.Context, req models.QuickChatRequest) (*models.QuickChatAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	if f.ack != nil {
		return f.ack, nil
	}
	return &models.QuickChatAck{OK: true}, nil
}

func (f *fakeClient) push(r ...pollReply) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, r...)
}

func (f *fakeClient) sinceCalls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.since))
	copy(out, f.since)
	return out
}

type changeCounter struct {
	mu sync.Mutex
	n  int
}

func (c *changeCounter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *changeCounter) get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestChannel(fc clockwork.Clock, client Client, onChange func()) *Channel {
	l, _ := test.NewNullLogger()
	return New(client, Config{
		ViewerID:   "me",
		ViewerName: "Me",
		Clock:      fc,
		Logger:     logrus.NewEntry(l),
		OnChange:   onChange,
	})
}

func ids(events []models.BroadcastEvent) map[string]int64 {
	out := make(map[string]int64, len(events))
	for _, ev := range events {
		out[ev.UserID] = ev.EventID
	}
	return out
}

func waitActive(t *testing.T, c *Channel, want map[string]int64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual(want, ids(c.Active()))
	}, time.Second, time.Millisecond)
}

const serverNow = int64(1_700_000_000_000)

func TestPollSupersessionScenario(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	changes := &changeCounter{}
	c := newTestChannel(fc, client, changes.inc)

	client.push(
		pollReply{res: &models.QuickChatPoll{
			LatestEventID: 6,
			CooldownMs:    6000,
			ServerNowMs:   serverNow,
			Events: []models.BroadcastEvent{
				{EventID: 5, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000},
				{EventID: 6, UserID: "B", PhraseID: "nh", ExpireAtMs: serverNow + 5000},
			},
		}},
		pollReply{res: &models.QuickChatPoll{
			LatestEventID: 6,
			ServerNowMs:   serverNow,
			Events:        []models.BroadcastEvent{{EventID: 5, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000}},
		}},
		pollReply{res: &models.QuickChatPoll{
			LatestEventID: 7,
			ServerNowMs:   serverNow,
			Events:        []models.BroadcastEvent{{EventID: 7, UserID: "A", PhraseID: "tilt_alert", ExpireAtMs: serverNow + 3000}},
		}},
	)

	ctx := context.Background()
	require.NoError(t, c.Poll(ctx))
	assert.Equal(t, map[string]int64{"A": 5, "B": 6}, ids(c.Active()))
	assert.Equal(t, 6*time.Second, c.Cooldown())
	assert.Equal(t, 1, changes.get())

	require.NoError(t, c.Poll(ctx))
	assert.Equal(t, map[string]int64{"A": 5, "B": 6}, ids(c.Active()))
	assert.Equal(t, 1, changes.get(), "a replayed event changes nothing")

	require.NoError(t, c.Poll(ctx))
	assert.Equal(t, map[string]int64{"A": 7, "B": 6}, ids(c.Active()))
	assert.Equal(t, []int64{0, 6, 6}, client.sinceCalls())
	assert.Equal(t, int64(7), c.Cursor())

	fc.Advance(3 * time.Second)
	waitActive(t, c, map[string]int64{"B": 6})

	fc.Advance(2 * time.Second)
	waitActive(t, c, map[string]int64{})
}

func TestExpiryUsesServerClock(t *testing.T) {
	// local clock is years behind the server
	fc := clockwork.NewFakeClockAt(time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	client := &fakeClient{}
	c := newTestChannel(fc, client, nil)

	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 1,
		ServerNowMs:   serverNow,
		Events:        []models.BroadcastEvent{{EventID: 1, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 4000}},
	}})
	require.NoError(t, c.Poll(context.Background()))

	fc.Advance(3999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, c.Active(), 1)

	fc.Advance(time.Millisecond)
	waitActive(t, c, map[string]int64{})
}

func TestPastDeadlineStillShowsBriefly(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	c := newTestChannel(fc, client, nil)

	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 3,
		ServerNowMs:   serverNow,
		Events:        []models.BroadcastEvent{{EventID: 3, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow - 2000}},
	}})
	require.NoError(t, c.Poll(context.Background()))
	assert.Len(t, c.Active(), 1)

	fc.Advance(time.Millisecond)
	waitActive(t, c, map[string]int64{})
}

func TestBatchIsAppliedInIDOrder(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	var seen []int64
	c := newTestChannel(fc, client, nil)
	c.cfg.OnEvent = func(ev models.BroadcastEvent) { seen = append(seen, ev.EventID) }

	client.push(
		pollReply{res: &models.QuickChatPoll{
			LatestEventID: 9,
			ServerNowMs:   serverNow,
			Events: []models.BroadcastEvent{
				{EventID: 9, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000},
				{EventID: 8, UserID: "A", PhraseID: "nh", ExpireAtMs: serverNow + 5000},
				{EventID: 8, UserID: "A", PhraseID: "nh", ExpireAtMs: serverNow + 5000},
			},
		}},
		pollReply{res: &models.QuickChatPoll{
			LatestEventID: 9,
			ServerNowMs:   serverNow,
			Events:        []models.BroadcastEvent{{EventID: 4, UserID: "A", PhraseID: "countdown", ExpireAtMs: serverNow + 5000}},
		}},
	)
	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, []int64{8, 9}, seen)
	assert.Equal(t, map[string]int64{"A": 9}, ids(c.Active()))

	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, map[string]int64{"A": 9}, ids(c.Active()), "an older server event never replaces a newer one")
}

func TestCursorNeverRegresses(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	c := newTestChannel(fc, client, nil)
	client.push(
		pollReply{res: &models.QuickChatPoll{LatestEventID: 12}},
		pollReply{res: &models.QuickChatPoll{LatestEventID: 10}},
	)
	require.NoError(t, c.Poll(context.Background()))
	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, int64(12), c.Cursor())
}

func TestEchoIsReplacedByServerEvent(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{ack: &models.QuickChatAck{OK: true, ChatEventID: 11, CooldownMs: 6000}}
	c := newTestChannel(fc, client, nil)

	ack, err := c.Send(context.Background(), "  GG ")
	require.NoError(t, err)
	assert.Equal(t, int64(11), ack.ChatEventID)

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, "me", active[0].UserID)
	assert.Equal(t, "gg", active[0].PhraseID)
	assert.True(t, active[0].Local())
	assert.Equal(t, int64(-1), active[0].EventID)

	require.Len(t, client.sent, 1)
	assert.Equal(t, "gg", client.sent[0].PhraseID)
	assert.NotEmpty(t, client.sent[0].ActionID)

	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 11,
		ServerNowMs:   fc.Now().UnixMilli(),
		Events:        []models.BroadcastEvent{{EventID: 11, UserID: "me", PhraseID: "gg", ExpireAtMs: fc.Now().UnixMilli() + 5000}},
	}})
	require.NoError(t, c.Poll(context.Background()))

	active = c.Active()
	require.Len(t, active, 1, "echo and confirmation never show together")
	assert.Equal(t, int64(11), active[0].EventID)

	// the echo's timer was cancelled, so only the server deadline applies
	fc.Advance(4999 * time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	assert.Len(t, c.Active(), 1)
	fc.Advance(time.Millisecond)
	waitActive(t, c, map[string]int64{})
}

func TestLocalIDsDecrease(t *testing.T) {
	fc := clockwork.NewFakeClock()
	c := newTestChannel(fc, &fakeClient{}, nil)

	_, err := c.Send(context.Background(), "gg")
	require.NoError(t, err)
	_, err = c.Send(context.Background(), "nh")
	require.NoError(t, err)

	active := c.Active()
	require.Len(t, active, 1)
	assert.Equal(t, int64(-2), active[0].EventID)
	assert.Equal(t, "nh", active[0].PhraseID)
}

func TestCooldownRejection(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{sendErr: &transport.Error{
		Status:  429,
		Message: "quick chat cooldown",
		Detail:  map[string]interface{}{"retryAfterMs": float64(4200)},
	}}
	changes := &changeCounter{}
	c := newTestChannel(fc, client, changes.inc)

	_, err := c.Send(context.Background(), "gg")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 4200*time.Millisecond, cd.RetryAfter)
	assert.Contains(t, err.Error(), "try again in ~5 seconds")
	assert.Equal(t, transport.KindRateLimit, transport.Classify(err))

	var te *transport.Error
	assert.ErrorAs(t, err, &te)

	assert.Empty(t, c.Active(), "a rejected echo is withdrawn")
	assert.Equal(t, 2, changes.get())
}

func TestCooldownFallsBackToRememberedHint(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{sendErr: &transport.Error{Status: 400, Message: "quick chat cooldown"}}
	client.push(pollReply{res: &models.QuickChatPoll{CooldownMs: 8000}})
	c := newTestChannel(fc, client, nil)
	require.NoError(t, c.Poll(context.Background()))

	_, err := c.Send(context.Background(), "gg")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 8*time.Second, cd.RetryAfter)
	assert.Contains(t, err.Error(), "~8 seconds")
}

func TestRetryAfterBecomesDefaultCooldown(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{sendErr: &transport.Error{
		Status:  429,
		Message: "quick chat cooldown",
		Detail:  map[string]interface{}{"retryAfterMs": float64(3000)},
	}}
	c := newTestChannel(fc, client, nil)

	_, err := c.Send(context.Background(), "gg")
	var cd *CooldownError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 3*time.Second, c.Cooldown())

	client.mu.Lock()
	client.sendErr = &transport.Error{Status: 429, Message: "quick chat cooldown"}
	client.mu.Unlock()

	_, err = c.Send(context.Background(), "gg")
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 3*time.Second, cd.RetryAfter)
	assert.Contains(t, err.Error(), "~3 seconds")
}

func TestOtherSendFailureIsPlain(t *testing.T) {
	fc := clockwork.NewFakeClock()
	boom := errors.New("connection refused")
	c := newTestChannel(fc, &fakeClient{sendErr: boom}, nil)

	_, err := c.Send(context.Background(), "gg")
	assert.ErrorIs(t, err, boom)
	var cd *CooldownError
	assert.False(t, errors.As(err, &cd))
	assert.Empty(t, c.Active())
}

func TestUnknownPhraseIsRejectedLocally(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	client.push(pollReply{res: &models.QuickChatPoll{Phrases: []string{"gg", "NH", "gg"}}})
	c := newTestChannel(fc, client, nil)
	require.NoError(t, c.Poll(context.Background()))
	assert.Equal(t, []string{"gg", "nh"}, c.Phrases())

	_, err := c.Send(context.Background(), "shout")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, transport.KindValidation, transport.Classify(err))

	_, err = c.Send(context.Background(), "   ")
	assert.ErrorAs(t, err, &verr)

	assert.Empty(t, client.sent)
	assert.Empty(t, c.Active())
}

func TestStartFetchesBeforeArming(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 3,
		Phrases:       []string{"gg"},
		ServerNowMs:   serverNow,
		Events:        []models.BroadcastEvent{{EventID: 3, UserID: "B", PhraseID: "gg", ExpireAtMs: serverNow + 60000}},
	}})
	c := newTestChannel(fc, client, nil)

	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, []int64{0}, client.sinceCalls())
	assert.Equal(t, []string{"gg"}, c.Phrases())
	assert.Len(t, c.Active(), 1)

	fc.Advance(DefaultPollInterval)
	require.Eventually(t, func() bool { return len(client.sinceCalls()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{0, 3}, client.sinceCalls())
}

func TestLoopSurvivesPollErrors(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	client.push(
		pollReply{res: &models.QuickChatPoll{LatestEventID: 1}},
		pollReply{err: &transport.Error{Status: 502}},
	)
	var mu sync.Mutex
	var errs []error
	c := newTestChannel(fc, client, nil)
	c.cfg.OnError = func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	fc.Advance(DefaultPollInterval)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errs) == 1
	}, time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.gen == 2
	}, time.Second, time.Millisecond)
	fc.Advance(DefaultPollInterval)
	require.Eventually(t, func() bool { return len(client.sinceCalls()) == 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []int64{0, 1, 1}, client.sinceCalls())
}

func TestStopTearsEverythingDown(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 2,
		ServerNowMs:   serverNow,
		Events: []models.BroadcastEvent{
			{EventID: 1, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000},
			{EventID: 2, UserID: "B", PhraseID: "gg", ExpireAtMs: serverNow + 5000},
		},
	}})
	changes := &changeCounter{}
	c := newTestChannel(fc, client, changes.inc)
	require.NoError(t, c.Start(context.Background()))
	before := changes.get()

	c.Stop()
	assert.Empty(t, c.Active())
	assert.Equal(t, int64(0), c.Cursor())
	assert.Equal(t, 0, c.seen.Len())

	fc.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []int64{0}, client.sinceCalls(), "no poll after teardown")
	assert.Equal(t, before, changes.get(), "no expiry after teardown")

	_, err := c.Send(context.Background(), "gg")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestRestartBeginsFromZero(t *testing.T) {
	fc := clockwork.NewFakeClock()
	client := &fakeClient{}
	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 4,
		ServerNowMs:   serverNow,
		Events:        []models.BroadcastEvent{{EventID: 4, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000}},
	}})
	c := newTestChannel(fc, client, nil)
	require.NoError(t, c.Start(context.Background()))
	c.Stop()

	client.push(pollReply{res: &models.QuickChatPoll{
		LatestEventID: 4,
		ServerNowMs:   serverNow,
		Events:        []models.BroadcastEvent{{EventID: 4, UserID: "A", PhraseID: "gg", ExpireAtMs: serverNow + 5000}},
	}})
	require.NoError(t, c.Start(context.Background()))
	defer c.Stop()

	assert.Equal(t, []int64{0, 0}, client.sinceCalls())
	assert.Equal(t, map[string]int64{"A": 4}, ids(c.Active()), "no stale dedup state leaks into the next session")
}
