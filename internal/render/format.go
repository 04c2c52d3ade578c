package render

import (
	"fmt"
	"io"
	"strings"
)

// Write prints v as plain text for terminal front ends.
func Write(w io.Writer, v View) error {
	var b strings.Builder

	fmt.Fprintf(&b, "== %s (v%d) ==\n", v.RoomName, v.Version)
	if v.InHand {
		community := "waiting for cards"
		if len(v.Community) > 0 {
			community = strings.Join(v.Community, " ")
		}
		fmt.Fprintf(&b, "%s | pot %d | %s\n", v.Stage, v.Pot, community)
		if v.Result != "" {
			fmt.Fprintf(&b, "result: %s\n", v.Result)
		}
	} else {
		fmt.Fprintf(&b, "%s\n", v.Stage)
	}

	for _, p := range v.Players {
		marker := " "
		if p.IsViewer {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %-12s stack %-6d bet %-5d %s", marker, p.Username, p.Stack, p.Contributed, p.LastAction)
		if len(p.Badges) > 0 {
			fmt.Fprintf(&b, " [%s]", strings.Join(p.Badges, " "))
		}
		if len(p.HoleCards) > 0 {
			fmt.Fprintf(&b, " %s", strings.Join(p.HoleCards, " "))
		}
		if p.BestHand != "" {
			fmt.Fprintf(&b, " (%s)", p.BestHand)
		}
		if p.Bubble != nil {
			fmt.Fprintf(&b, "  💬 %s", p.Bubble.Text)
		}
		b.WriteString("\n")
	}
	for _, bb := range v.Bubbles {
		fmt.Fprintf(&b, "  %s: %s\n", bb.Username, bb.Text)
	}

	if v.HasStack {
		fmt.Fprintf(&b, "your stack: %d\n", v.MyStack)
	}
	fmt.Fprintf(&b, "%s\n", v.ActionHint)
	if v.CanStart {
		b.WriteString("you own this room: type 'start' to deal\n")
	}
	if v.CanNextHand {
		b.WriteString("type 'next' to deal the next hand\n")
	}
	if v.WaitingForOwner {
		b.WriteString("waiting for the owner to deal the next hand\n")
	}
	if len(v.Reveal) > 0 {
		var opts []string
		for _, r := range v.Reveal {
			s := fmt.Sprintf("%d=%s", r.Mask, r.Label)
			if r.Selected {
				s += "*"
			}
			opts = append(opts, s)
		}
		fmt.Fprintf(&b, "reveal: %s\n", strings.Join(opts, ", "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
