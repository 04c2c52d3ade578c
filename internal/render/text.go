package render

import (
	"strconv"

	"github.com/jason-s-yu/tablesync/internal/models"
)

var actionText = map[string]string{
	"check":       "check",
	"call":        "call",
	"bet":         "bet",
	"raise":       "raise",
	"allin":       "all-in",
	"fold":        "fold",
	"leave":       "left",
	"small_blind": "small blind",
	"big_blind":   "big blind",
}

var stageText = map[models.Stage]string{
	models.StagePreflop:  "Pre-flop",
	models.StageFlop:     "Flop",
	models.StageTurn:     "Turn",
	models.StageRiver:    "River",
	models.StageShowdown: "Showdown",
	models.StageFinished: "Finished",
}

var reasonText = map[string]string{
	"showdown":          "showdown",
	"others folded":     "everyone else folded",
	"no active players": "no active players",
}

var handText = map[string]string{
	"straight_flush":  "Straight flush",
	"four_of_a_kind":  "Four of a kind",
	"full_house":      "Full house",
	"flush":           "Flush",
	"straight":        "Straight",
	"three_of_a_kind": "Three of a kind",
	"two_pair":        "Two pair",
	"one_pair":        "One pair",
	"high_card":       "High card",
}

var revealText = map[models.RevealMask]string{
	models.RevealNone:   "show nothing",
	models.RevealFirst:  "show first card",
	models.RevealSecond: "show second card",
	models.RevealBoth:   "show both",
}

// phraseText is the display text of every quick-chat phrase the server ships.
var phraseText = map[string]string{
	"wait_flowers":    "I waited so long the flowers wilted.",
	"solve_universe":  "Still solving the universe over there?",
	"tea_refill":      "Time for a tea refill.",
	"countdown":       "Three, two, one...",
	"thinker_mode":    "Thinker mode engaged.",
	"dawn_table":      "See you at dawn at this table.",
	"cappuccino":      "Another cappuccino, please.",
	"showtime":        "Showtime!",
	"you_act_i_act":   "You act, then I act.",
	"something_here":  "Something's going on here.",
	"mind_game":       "Nice mind game.",
	"script_seen":     "I've seen this script before.",
	"allin_warning":   "Careful, I might go all-in.",
	"just_this":       "That's all you've got?",
	"easy_sigh":       "Phew, easy.",
	"fold_now":        "Fold now and save yourself.",
	"you_call_i_show": "You call, I show.",
	"take_the_shot":   "Take the shot.",
	"pressure_on":     "Pressure's on.",
	"tilt_alert":      "Tilt alert!",
	"nh":              "Nice hand.",
	"gg":              "Good game.",
	"luck_is_skill":   "Luck is a skill too.",
	"next_real":       "Next hand is the real one.",
}

func lookup(m map[string]string, key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	if key == "" {
		return "-"
	}
	return key
}

// ActionText labels a logged or last action.
func ActionText(action string) string { return lookup(actionText, action) }

// StageText labels a betting round.
func StageText(stage models.Stage) string {
	if v, ok := stageText[stage]; ok {
		return v
	}
	if stage == "" {
		return "-"
	}
	return string(stage)
}

// ReasonText labels why a hand ended.
func ReasonText(reason string) string { return lookup(reasonText, reason) }

// HandText labels an evaluated hand category.
func HandText(name string) string { return lookup(handText, name) }

// RevealText labels a reveal choice.
func RevealText(m models.RevealMask) string {
	if v, ok := revealText[m]; ok {
		return v
	}
	return strconv.Itoa(int(m))
}

// PhraseText returns the display text of a phrase id, or the id itself when unknown.
func PhraseText(id string) string { return lookup(phraseText, id) }

var suits = [...]string{"♣", "♦", "♥", "♠"}

// CardText renders a card as rank and suit, e.g. "A♠" or "10♥".
func CardText(c models.Card) string {
	var rank string
	switch {
	case c.Rank == 11:
		rank = "J"
	case c.Rank == 12:
		rank = "Q"
	case c.Rank == 13:
		rank = "K"
	case c.Rank == 14:
		rank = "A"
	case c.Rank >= 2 && c.Rank <= 10:
		rank = strconv.Itoa(c.Rank)
	default:
		rank = "?"
	}
	suit := "?"
	if c.Suit >= 0 && c.Suit < len(suits) {
		suit = suits[c.Suit]
	}
	return rank + suit
}

func cardsText(cards []models.Card) []string {
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		out = append(out, CardText(c))
	}
	return out
}
