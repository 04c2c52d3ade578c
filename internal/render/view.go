// internal/render/view.go
package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jason-s-yu/tablesync/internal/models"
)

// Bubble is one visible quick-chat phrase.
type Bubble struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	PhraseID   string `json:"phraseId"`
	Text       string `json:"text"`
	ExpireAtMs int64  `json:"expireAtMs"`
	Local      bool   `json:"local"`
}

// PlayerRow is one seat in the rendered table.
type PlayerRow struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	Seat        int      `json:"seat"`
	Stack       int64    `json:"stack"`
	Contributed int64    `json:"contributed"`
	LastAction  string   `json:"lastAction"`
	BestHand    string   `json:"bestHand,omitempty"`
	HoleCards   []string `json:"holeCards,omitempty"`
	Badges      []string `json:"badges,omitempty"`
	IsTurn      bool     `json:"isTurn"`
	Folded      bool     `json:"folded"`
	IsViewer    bool     `json:"isViewer"`
	Bubble      *Bubble  `json:"bubble,omitempty"`
}

// ActionOption is one action button and whether it can be pressed now.
type ActionOption struct {
	Type    models.ActionType `json:"type"`
	Enabled bool              `json:"enabled"`
	// Amount is the call amount, the minimum bet or raise, or the all-in stack.
	Amount int64  `json:"amount,omitempty"`
	Label  string `json:"label"`
}

// RevealOption is one reveal choice offered after the hand.
type RevealOption struct {
	Mask     models.RevealMask `json:"mask"`
	Label    string            `json:"label"`
	Selected bool              `json:"selected"`
}

// View is everything a front end needs to draw the room. It is derived from
// a snapshot and the active bubbles alone.
type View struct {
	RoomID    string            `json:"roomId"`
	RoomName  string            `json:"roomName"`
	Status    models.RoomStatus `json:"status"`
	Version   int64             `json:"version"`
	InHand    bool              `json:"inHand"`
	Stage     string            `json:"stage"`
	Pot       int64             `json:"pot"`
	Community []string          `json:"community"`
	Result    string            `json:"result,omitempty"`
	Players   []PlayerRow       `json:"players"`

	MyStack    int64          `json:"myStack"`
	HasStack   bool           `json:"hasStack"`
	Actions    []ActionOption `json:"actions"`
	ActionHint string         `json:"actionHint"`

	CanStart        bool           `json:"canStart"`
	CanNextHand     bool           `json:"canNextHand"`
	WaitingForOwner bool           `json:"waitingForOwner"`
	Reveal          []RevealOption `json:"reveal,omitempty"`

	HandLog []string `json:"handLog"`
	// Bubbles holds phrases from users without a seat in the view.
	Bubbles []Bubble `json:"bubbles,omitempty"`
}

// Bubbles turns active events into display bubbles keyed by sender, resolving
// names from snap when the event carries none.
func Bubbles(snap *models.StateSnapshot, events []models.BroadcastEvent) map[string]Bubble {
	out := make(map[string]Bubble, len(events))
	for _, ev := range events {
		name := ev.Username
		if name == "" {
			name = snap.Username(ev.UserID)
		}
		out[ev.UserID] = Bubble{
			UserID:     ev.UserID,
			Username:   name,
			PhraseID:   ev.PhraseID,
			Text:       PhraseText(ev.PhraseID),
			ExpireAtMs: ev.ExpireAtMs,
			Local:      ev.Local(),
		}
	}
	return out
}

// Project builds the view for viewerID. snap may be nil before the first refresh.
func Project(snap *models.StateSnapshot, viewerID string, events []models.BroadcastEvent) View {
	bubbles := Bubbles(snap, events)
	if snap == nil {
		v := View{Stage: "-", ActionHint: "Connecting..."}
		v.Bubbles = leftover(bubbles)
		return v
	}

	v := View{
		RoomID:   snap.RoomID,
		RoomName: snap.RoomName,
		Status:   snap.RoomStatus,
		Version:  snap.StateVersion,
		InHand:   snap.Game != nil,
	}

	if g := snap.Game; g != nil {
		v.Stage = StageText(g.Stage)
		v.Pot = g.Pot
		v.Community = cardsText(g.CommunityCards)
		v.Result = resultText(g)
		for idx, p := range g.Players {
			row := PlayerRow{
				UserID:      p.UserID,
				Username:    p.Username,
				Seat:        p.SeatIndex,
				Stack:       p.Stack,
				Contributed: p.Contributed,
				LastAction:  ActionText(p.LastAction),
				HoleCards:   cardsText(p.HoleCards),
				Badges:      badges(g, idx, p),
				IsTurn:      p.IsTurn,
				Folded:      p.Folded,
				IsViewer:    p.UserID == viewerID,
			}
			if p.BestHandName != "" {
				row.BestHand = HandText(p.BestHandName)
			}
			v.Players = append(v.Players, row)
		}
		v.HandLog = handLog(g.ActionLogs)
	} else {
		v.Stage = "Waiting to start"
		for _, p := range snap.RoomPlayers {
			row := PlayerRow{
				UserID:     p.UserID,
				Username:   p.Username,
				Seat:       p.Seat,
				Stack:      p.Stack,
				LastAction: "-",
				IsViewer:   p.UserID == viewerID,
			}
			if p.UserID == snap.OwnerUserID {
				row.Badges = append(row.Badges, "owner")
			}
			v.Players = append(v.Players, row)
		}
	}

	for i := range v.Players {
		if b, ok := bubbles[v.Players[i].UserID]; ok {
			b := b
			v.Players[i].Bubble = &b
			delete(bubbles, v.Players[i].UserID)
		}
	}
	v.Bubbles = leftover(bubbles)

	v.MyStack, v.HasStack = myStack(snap, viewerID)
	v.Actions, v.ActionHint = actions(snap, viewerID)

	isOwner := snap.OwnerUserID != "" && snap.OwnerUserID == viewerID
	v.CanStart = isOwner && snap.RoomStatus == models.RoomWaiting && snap.Game == nil
	v.CanNextHand = snap.CanStartNextHand
	v.WaitingForOwner = !isOwner && snap.Game != nil && snap.Game.Stage == models.StageFinished

	if me, ok := snap.Player(viewerID); ok && me.CanReveal {
		for m := models.RevealNone; m <= models.RevealBoth; m++ {
			v.Reveal = append(v.Reveal, RevealOption{
				Mask:     m,
				Label:    RevealText(m),
				Selected: int(m) == me.RevealMask,
			})
		}
	}
	return v
}

func leftover(bubbles map[string]Bubble) []Bubble {
	if len(bubbles) == 0 {
		return nil
	}
	out := make([]Bubble, 0, len(bubbles))
	for _, b := range bubbles {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func badges(g *models.GameView, idx int, p models.GamePlayer) []string {
	var out []string
	if idx == g.DealerPos {
		out = append(out, "D")
	}
	if idx == g.SmallBlindPos {
		out = append(out, "SB")
	}
	if idx == g.BigBlindPos {
		out = append(out, "BB")
	}
	if p.IsTurn {
		out = append(out, "acting")
	}
	if p.Folded {
		out = append(out, "folded")
	}
	return out
}

func resultText(g *models.GameView) string {
	if g.Result == nil {
		return ""
	}
	var winners []string
	for _, id := range g.Result.Winners {
		name := id
		for _, p := range g.Players {
			if p.UserID == id && p.Username != "" {
				name = p.Username
				break
			}
		}
		winners = append(winners, name)
	}
	w := "none"
	if len(winners) > 0 {
		w = strings.Join(winners, ", ")
	}
	return fmt.Sprintf("%s, winners: %s", ReasonText(g.Result.Reason), w)
}

func handLog(logs []models.ActionLog) []string {
	out := make([]string, 0, len(logs))
	for _, l := range logs {
		line := fmt.Sprintf("[%s] %s %s", StageText(l.Stage), l.Username, ActionText(l.Action))
		if l.Amount > 0 {
			line += fmt.Sprintf(" %d", l.Amount)
		}
		out = append(out, line)
	}
	return out
}

// myStack prefers the room roster, which survives between hands.
func myStack(snap *models.StateSnapshot, viewerID string) (int64, bool) {
	for _, p := range snap.RoomPlayers {
		if p.UserID == viewerID {
			return p.Stack, true
		}
	}
	if me, ok := snap.Player(viewerID); ok {
		return me.Stack, true
	}
	return 0, false
}

func actions(snap *models.StateSnapshot, viewerID string) ([]ActionOption, string) {
	if snap.Game == nil {
		return nil, "The hand has not started."
	}
	me, ok := snap.Player(viewerID)
	if !ok {
		return nil, "You are not in this hand."
	}
	canAllIn := me.IsTurn && !me.Folded && me.Stack > 0

	opts := []ActionOption{
		{Type: models.ActionCheck, Enabled: me.CanCheck, Label: "check"},
		{Type: models.ActionCall, Enabled: me.CanCall, Amount: me.CallAmount, Label: fmt.Sprintf("call %d", me.CallAmount)},
		{Type: models.ActionBet, Enabled: me.CanBet, Amount: me.MinBet, Label: fmt.Sprintf("bet ≥%d", me.MinBet)},
		{Type: models.ActionRaise, Enabled: me.CanRaise, Amount: me.MinRaise, Label: fmt.Sprintf("raise ≥%d", me.MinRaise)},
		{Type: models.ActionAllIn, Enabled: canAllIn, Amount: me.Stack, Label: fmt.Sprintf("all-in %d", me.Stack)},
		{Type: models.ActionFold, Enabled: me.CanFold, Label: "fold"},
	}
	var avail []string
	for _, o := range opts {
		if o.Enabled {
			avail = append(avail, o.Label)
		}
	}
	if len(avail) == 0 {
		return opts, "Nothing to do, wait for your turn."
	}
	return opts, "You can: " + strings.Join(avail, ", ")
}
