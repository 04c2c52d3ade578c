// internal/models/state.go
package models

import "encoding/json"

// RoomStatus mirrors the server's room lifecycle.
type RoomStatus string

const (
	RoomWaiting RoomStatus = "waiting"
	RoomPlaying RoomStatus = "playing"
)

// Stage is the betting round of the hand in progress.
type Stage string

const (
	StagePreflop  Stage = "preflop"
	StageFlop     Stage = "flop"
	StageTurn     Stage = "turn"
	StageRiver    Stage = "river"
	StageShowdown Stage = "showdown"
	StageFinished Stage = "finished"
)

// Card is a single playing card. Rank runs 2..14 (ace high), Suit 0..3 (clubs, diamonds, hearts, spades).
type Card struct {
	Rank int `json:"rank"`
	Suit int `json:"suit"`
}

// RoomPlayer is a seated member of the room, independent of any hand in progress.
type RoomPlayer struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Seat     int    `json:"seat"`
	Stack    int64  `json:"stack"`
}

// GamePlayer is one participant of the current hand as seen by the requesting viewer.
type GamePlayer struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	SeatIndex    int    `json:"seatIndex"`
	Stack        int64  `json:"stack"`
	Folded       bool   `json:"folded"`
	LastAction   string `json:"lastAction"`
	Won          int64  `json:"won"`
	Contributed  int64  `json:"contributed"`
	BestHandName string `json:"bestHandName,omitempty"`
	HoleCards    []Card `json:"holeCards,omitempty"`

	IsTurn     bool  `json:"isTurn"`
	CanCheck   bool  `json:"canCheck"`
	CanCall    bool  `json:"canCall"`
	CanBet     bool  `json:"canBet"`
	CanRaise   bool  `json:"canRaise"`
	CanFold    bool  `json:"canFold"`
	CanReveal  bool  `json:"canReveal"`
	RevealMask int   `json:"revealMask"`
	CallAmount int64 `json:"callAmount"`
	MinBet     int64 `json:"minBet"`
	MinRaise   int64 `json:"minRaise"`
}

// ActionLog is one line of the hand history.
type ActionLog struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Action   string `json:"action"`
	Amount   int64  `json:"amount"`
	Stage    Stage  `json:"stage"`
}

// HandResult is set once the hand is decided.
type HandResult struct {
	Reason  string   `json:"reason"`
	Winners []string `json:"winners"`
}

// GameView is the hand in progress.
type GameView struct {
	Stage          Stage        `json:"stage"`
	Pot            int64        `json:"pot"`
	DealerPos      int          `json:"dealerPos"`
	SmallBlindPos  int          `json:"smallBlindPos"`
	BigBlindPos    int          `json:"bigBlindPos"`
	TurnPos        int          `json:"turnPos"`
	CommunityCards []Card       `json:"communityCards"`
	Players        []GamePlayer `json:"players"`
	Result         *HandResult  `json:"result,omitempty"`
	OpenBetMin     int64        `json:"openBetMin"`
	BetMin         int64        `json:"betMin"`
	ActionLogs     []ActionLog  `json:"actionLogs"`
}

// StateSnapshot is the server's reply to an incremental state request.
// When NotModified is set nothing else in the reply is authoritative.
type StateSnapshot struct {
	RoomID           string       `json:"roomId"`
	RoomName         string       `json:"roomName"`
	RoomStatus       RoomStatus   `json:"roomStatus"`
	OwnerUserID      string       `json:"ownerUserId"`
	StateVersion     int64        `json:"stateVersion"`
	NotModified      bool         `json:"notModified"`
	CanStartNextHand bool         `json:"canStartNextHand"`
	RoomPlayers      []RoomPlayer `json:"roomPlayers"`
	Game             *GameView    `json:"game"`
}

// UnmarshalJSON accepts the short "version" field used by notModified replies.
func (s *StateSnapshot) UnmarshalJSON(data []byte) error {
	type plain StateSnapshot
	aux := struct {
		*plain
		Version *int64 `json:"version"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if s.StateVersion == 0 && aux.Version != nil {
		s.StateVersion = *aux.Version
	}
	return nil
}

// Player returns the hand participant with the given user id, if any.
func (s *StateSnapshot) Player(userID string) (*GamePlayer, bool) {
	if s == nil || s.Game == nil || userID == "" {
		return nil, false
	}
	for i := range s.Game.Players {
		if s.Game.Players[i].UserID == userID {
			return &s.Game.Players[i], true
		}
	}
	return nil, false
}

// ViewerHasTurn reports whether the given user is the one expected to act.
func (s *StateSnapshot) ViewerHasTurn(userID string) bool {
	p, ok := s.Player(userID)
	return ok && p.IsTurn
}

// Username resolves a display name from the hand first, then the room roster.
func (s *StateSnapshot) Username(userID string) string {
	if p, ok := s.Player(userID); ok && p.Username != "" {
		return p.Username
	}
	if s == nil {
		return ""
	}
	for _, rp := range s.RoomPlayers {
		if rp.UserID == userID {
			return rp.Username
		}
	}
	return ""
}
