package main

import (
	"errors"
	"fmt"
	"strings"
)

type commandKind int

const (
	cmdNone commandKind = iota
	cmdSend
	cmdJoin
	cmdCreate
	cmdDelete
	cmdEdit
	cmdRemove
	cmdConnect
	cmdQuit
)

// command is one parsed input line.
type command struct {
	kind commandKind
	arg  string // room name or message id
	text string
}

var errUnknownCommand = errors.New("unknown command")

var usage = map[commandKind]string{
	cmdJoin:   "/join <room>",
	cmdCreate: "/create <room>",
	cmdDelete: "/delete <room>",
	cmdEdit:   "/edit <id> <text>",
	cmdRemove: "/rm <id>",
}

// parseInput turns an input line into a command. Lines that do not start
// with a slash are chat messages; "//" escapes a leading slash.
func parseInput(line string) (command, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return command{kind: cmdNone}, nil
	}
	if !strings.HasPrefix(trimmed, "/") {
		return command{kind: cmdSend, text: line}, nil
	}
	if strings.HasPrefix(trimmed, "//") {
		return command{kind: cmdSend, text: trimmed[1:]}, nil
	}

	name, rest, _ := strings.Cut(trimmed[1:], " ")
	rest = strings.TrimSpace(rest)
	var c command
	switch strings.ToLower(name) {
	case "join", "j":
		c.kind = cmdJoin
	case "create", "new":
		c.kind = cmdCreate
	case "delete":
		c.kind = cmdDelete
	case "edit":
		c.kind = cmdEdit
	case "rm":
		c.kind = cmdRemove
	case "connect", "reconnect":
		return command{kind: cmdConnect}, nil
	case "quit", "q":
		return command{kind: cmdQuit}, nil
	default:
		return command{}, fmt.Errorf("%w: /%s", errUnknownCommand, name)
	}

	if c.kind == cmdEdit {
		id, text, _ := strings.Cut(rest, " ")
		c.arg, c.text = id, strings.TrimSpace(text)
		if c.arg == "" || c.text == "" {
			return command{}, fmt.Errorf("usage: %s", usage[c.kind])
		}
		return c, nil
	}
	c.arg = rest
	if c.arg == "" {
		return command{}, fmt.Errorf("usage: %s", usage[c.kind])
	}
	return c, nil
}
