package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jason-s-yu/tablesync/internal/models"
)

type verb int

const (
	verbAct verb = iota
	verbReveal
	verbSay
	verbPhrases
	verbStart
	verbNext
	verbShow
	verbLeave
	verbHelp
)

// command is one parsed line of user input.
type command struct {
	verb   verb
	action models.ActionType
	amount int64
	mask   models.RevealMask
	phrase string
}

var revealNames = map[string]models.RevealMask{
	"none":  models.RevealNone,
	"left":  models.RevealFirst,
	"right": models.RevealSecond,
	"both":  models.RevealBoth,
}

const helpText = `commands:
  check | call | fold | allin
  bet N | raise N
  reveal none|left|right|both
  say PHRASE      (see 'phrases')
  start | next    (room owner)
  show | leave | help`

func parseCommand(line string) (command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return command{verb: verbShow}, nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "check", "call", "fold", "allin", "all-in":
		if name == "all-in" {
			name = "allin"
		}
		return command{verb: verbAct, action: models.ActionType(name)}, nil

	case "bet", "raise":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s AMOUNT", name)
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return command{}, fmt.Errorf("invalid amount %q", args[0])
		}
		return command{verb: verbAct, action: models.ActionType(name), amount: amount}, nil

	case "reveal", "show-cards":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: reveal none|left|right|both")
		}
		if mask, ok := revealNames[args[0]]; ok {
			return command{verb: verbReveal, mask: mask}, nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || !models.RevealMask(n).Valid() {
			return command{}, fmt.Errorf("invalid reveal choice %q", args[0])
		}
		return command{verb: verbReveal, mask: models.RevealMask(n)}, nil

	case "say", "chat":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: say PHRASE")
		}
		return command{verb: verbSay, phrase: args[0]}, nil

	case "phrases":
		return command{verb: verbPhrases}, nil
	case "start":
		return command{verb: verbStart}, nil
	case "next":
		return command{verb: verbNext}, nil
	case "show", "view":
		return command{verb: verbShow}, nil
	case "leave", "quit", "exit":
		return command{verb: verbLeave}, nil
	case "help", "?":
		return command{verb: verbHelp}, nil
	}
	return command{}, fmt.Errorf("unknown command %q, type 'help'", name)
}
