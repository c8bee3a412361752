package ui

import (
	"errors"
	"fmt"
	"strings"

	"genesis/internal/snapshot"
)

var ErrUsage = errors.New("usage")

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSave
	cmdLoad
	cmdClear
	cmdSessions
)

type slashCommand struct {
	kind commandKind
	name string
	opts snapshot.Options
}

// parseCommand recognises /save, /load, /clear and /sessions. Any other
// input, including unknown slash words, is a chat message.
func parseCommand(input string) (slashCommand, error) {
	fields := strings.Fields(strings.TrimSpace(input))
	if len(fields) == 0 {
		return slashCommand{}, nil
	}
	switch fields[0] {
	case "/clear", "/reset":
		return slashCommand{kind: cmdClear}, nil
	case "/sessions":
		return slashCommand{kind: cmdSessions}, nil
	case "/load":
		if len(fields) < 2 {
			return slashCommand{}, fmt.Errorf("%w: /load NAME", ErrUsage)
		}
		return slashCommand{kind: cmdLoad, name: strings.Join(fields[1:], " ")}, nil
	case "/save":
		if len(fields) < 2 {
			return slashCommand{}, fmt.Errorf("%w: /save NAME [chat,main,left,visuals]", ErrUsage)
		}
		cmd := slashCommand{kind: cmdSave, name: fields[1], opts: snapshot.AllOptions()}
		if len(fields) > 2 {
			opts, err := parseCategories(strings.Join(fields[2:], ","))
			if err != nil {
				return slashCommand{}, err
			}
			cmd.opts = opts
		}
		return cmd, nil
	default:
		return slashCommand{}, nil
	}
}

func parseCategories(list string) (snapshot.Options, error) {
	var opts snapshot.Options
	for _, part := range strings.Split(list, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "chat":
			opts.Chat = true
		case "main", "maincanvas":
			opts.MainCanvas = true
		case "left", "leftcanvas":
			opts.LeftCanvas = true
		case "visuals", "media":
			opts.Visuals = true
		case "all":
			opts = snapshot.AllOptions()
		default:
			return snapshot.Options{}, fmt.Errorf("%w: unknown category %q (chat, main, left, visuals)", ErrUsage, part)
		}
	}
	if opts.None() {
		return snapshot.Options{}, fmt.Errorf("%w: no categories selected", ErrUsage)
	}
	return opts, nil
}
