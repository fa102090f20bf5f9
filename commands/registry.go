package commands

import (
	"fmt"
	"strings"
)

// entry describes one command of the registry.
type entry struct {
	name        string
	aliases     []string
	usage       string
	description string
	freeText    bool // arguments are a message, duplicates are kept
	build       func(*base) Command
}

// Registry maps command tokens and their aliases to the command implementations.
type Registry struct {
	entries []*entry
	byToken map[string]*entry
	help    *entry
}

// NewRegistry builds the closed set of commands.
func NewRegistry() *Registry {
	r := &Registry{byToken: make(map[string]*entry)}
	r.add(&entry{name: "who", aliases: []string{"w"}, usage: "[room ...]",
		description: "List the users in this room or in the named rooms.", build: newWhoCommand})
	r.add(&entry{name: "private", aliases: []string{"p", "msg"}, usage: targetMarker + "<user> <message>",
		description: "Send a private message.", freeText: true, build: newPrivateCommand})
	r.add(&entry{name: "create", aliases: []string{"c"}, usage: "<room name>",
		description: "Create a new room and become its owner.", build: newCreateCommand})
	r.add(&entry{name: "apply", aliases: []string{"elevate", "e", "a"}, usage: "[" + targetMarker + "<user>] [message]",
		description: "Ask somebody with more authority for a promotion or a favor.", freeText: true, build: newApplyCommand})
	r.add(&entry{name: "kick", aliases: []string{"k"}, usage: "<user> [more users ...]",
		description: "Throw users out of this room.", build: newKickCommand})
	r.add(&entry{name: "ban", aliases: []string{"b"}, usage: "<user> [more users ...]",
		description: "Throw users out of this room and keep them out.", build: newBanCommand})
	r.add(&entry{name: "lift", aliases: []string{"l", "unban"}, usage: "<user> [more users ...]",
		description: "Lift the ban of users.", build: newLiftCommand})
	r.add(&entry{name: "hire", aliases: []string{"h"}, usage: "<user> [more users ...]",
		description: "Make users admins, or admins unlimited admins.", build: newHireCommand})
	r.add(&entry{name: "fire", aliases: []string{"f"}, usage: "<user> [more users ...]",
		description: "Demote unlimited admins, or take admin rights away.", build: newFireCommand})
	r.add(&entry{name: "delete", aliases: []string{"d"}, usage: "<room name> <owner name>",
		description: "Delete this room for good. Without arguments it tells you how to confirm.", freeText: true, build: newDeleteCommand})
	help := &entry{name: "help", aliases: []string{"?"}, description: "Show this menu."}
	help.build = func(b *base) Command {
		return &helpCommand{base: b, menu: r.Menu()}
	}
	r.add(help)
	r.help = help
	return r
}

func (r *Registry) add(e *entry) {
	r.entries = append(r.entries, e)
	r.byToken[e.name] = e
	for _, alias := range e.aliases {
		r.byToken[alias] = e
	}
}

// Lookup finds the command of a lower-cased token.
func (r *Registry) Lookup(token string) (*entry, bool) {
	e, ok := r.byToken[token]
	return e, ok
}

// Menu renders one line per command.
func (r *Registry) Menu() []string {
	lines := []string{"Commands:"}
	for _, e := range r.entries {
		tokens := make([]string, 0, len(e.aliases)+1)
		for _, token := range append([]string{e.name}, e.aliases...) {
			tokens = append(tokens, commandMarker+token)
		}
		line := strings.Join(tokens, ", ")
		if e.usage != "" {
			line += " " + e.usage
		}
		lines = append(lines, fmt.Sprintf("%s%s: %s", listIndent, line, e.description))
	}
	lines = append(lines, "Start a message with "+commandMarker+commandMarker+" to send it as it is.")
	return lines
}
