package models

// BroadcastEvent is one quick-chat bubble. Server events have positive, globally
// increasing ids; locally echoed events use negative ids.
type BroadcastEvent struct {
	EventID     int64  `json:"eventId"`
	UserID      string `json:"userId"`
	Username    string `json:"username,omitempty"`
	PhraseID    string `json:"phraseId"`
	CreatedAtMs int64  `json:"createdAtMs,omitempty"`
	ExpireAtMs  int64  `json:"expireAtMs"`
}

// Local reports whether the event is an optimistic echo that never came from the server.
func (e BroadcastEvent) Local() bool {
	return e.EventID < 0
}

// QuickChatPoll is the reply to GET quick-chats?sinceEventId=E.
type QuickChatPoll struct {
	LatestEventID int64            `json:"latestEventId"`
	Events        []BroadcastEvent `json:"events"`
	Phrases       []string         `json:"phrases"`
	CooldownMs    int64            `json:"cooldownMs"`
	BubbleTTLMs   int64            `json:"bubbleTtlMs"`
	ServerNowMs   int64            `json:"serverNowMs"`
}

// QuickChatRequest is the body of POST quick-chats.
type QuickChatRequest struct {
	ActionID string `json:"actionId"`
	PhraseID string `json:"phraseId"`
}

// QuickChatAck is the server's acceptance reply.
type QuickChatAck struct {
	OK          bool  `json:"ok"`
	ChatEventID int64 `json:"chatEventId"`
	CooldownMs  int64 `json:"cooldownMs,omitempty"`
}
