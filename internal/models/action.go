package models

// ActionType is a player move submitted to the actions endpoint.
type ActionType string

const (
	ActionCheck  ActionType = "check"
	ActionCall   ActionType = "call"
	ActionBet    ActionType = "bet"
	ActionRaise  ActionType = "raise"
	ActionAllIn  ActionType = "allin"
	ActionFold   ActionType = "fold"
	ActionReveal ActionType = "reveal"
)

// Valid reports whether t is a known action.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCheck, ActionCall, ActionBet, ActionRaise, ActionAllIn, ActionFold, ActionReveal:
		return true
	}
	return false
}

// NeedsAmount reports whether the action must carry a positive amount.
func (t ActionType) NeedsAmount() bool {
	return t == ActionBet || t == ActionRaise
}

// Wire is the type string the server expects. The server handles opening bets
// and raises through the same "bet" action.
func (t ActionType) Wire() string {
	if t == ActionRaise {
		return string(ActionBet)
	}
	return string(t)
}

// RevealMask selects which hole cards to show after the hand.
type RevealMask int

const (
	RevealNone   RevealMask = 0
	RevealFirst  RevealMask = 1
	RevealSecond RevealMask = 2
	RevealBoth   RevealMask = 3
)

// Valid reports whether m is one of the four supported masks.
func (m RevealMask) Valid() bool {
	return m >= RevealNone && m <= RevealBoth
}

// ActionRequest is the body of POST actions. ActionID identifies one user intent
// so that retries of the same request can be deduplicated by the server.
type ActionRequest struct {
	ActionID        string      `json:"actionId"`
	Type            string      `json:"type"`
	ExpectedVersion int64       `json:"expectedVersion"`
	Amount          int64       `json:"amount,omitempty"`
	RevealMask      *RevealMask `json:"revealMask,omitempty"`
}

// ActionAck is the server's acceptance reply.
type ActionAck struct {
	OK           bool  `json:"ok"`
	StateVersion int64 `json:"stateVersion"`
}
