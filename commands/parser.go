package commands

import "strings"

const (
	commandMarker = "/"
	targetMarker  = "@"
)

// Input is one parsed line.
type Input struct {
	IsCommand bool
	Command   string   // lower-cased command token without the marker, may be empty for a bare marker
	Args      []string // whitespace separated tokens after the command token
	Rest      string   // raw text after the command token, leading whitespace removed
	Text      string   // chat text, with a doubled marker unescaped
}

// Parse splits a raw line into a command token and arguments. A line starting with a single marker is a
// command, "//" escapes to a chat line starting with one marker, anything else is chat.
func Parse(raw string) Input {
	raw = strings.TrimRight(raw, "\r\n")
	if strings.HasPrefix(raw, commandMarker+commandMarker) {
		return Input{Text: raw[len(commandMarker):]}
	}
	if !strings.HasPrefix(raw, commandMarker) {
		return Input{Text: raw}
	}
	token, rest := splitFirst(raw[len(commandMarker):])
	return Input{
		IsCommand: true,
		Command:   strings.ToLower(token),
		Args:      strings.Fields(rest),
		Rest:      rest,
	}
}

// splitFirst returns the first whitespace separated token of s and the remainder without leading whitespace.
func splitFirst(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimLeft(s[idx:], " \t")
}
