// Package command implements the slash commands accepted on every transport.
// Commands bypass the request pipeline: they are not classified, tracked for
// feedback or delegated.
package command

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Command represents a slash command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	AdminOnly   bool
	Handler     CommandHandler
}

// CommandHandler is the function signature for command execution.
type CommandHandler func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error)

// CommandContext describes who issued the command and where.
type CommandContext struct {
	Platform  string
	ChannelID string
	UserID    string
	UserName  string
	Admin     bool
}

// CommandResult holds the output of a command.
type CommandResult struct {
	Content string `json:"content"`
	Data    any    `json:"data,omitempty"`
}

// Registry holds all registered commands, keyed by name and alias.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]string
	mu       sync.RWMutex
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]string),
	}
}

// Register adds a command. A later registration under the same name wins.
func (r *Registry) Register(cmd *Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(cmd.Name)
	r.commands[name] = cmd
	for _, a := range cmd.Aliases {
		r.aliases[strings.ToLower(a)] = name
	}
}

// Parse splits "/name args" into its parts. ok is false for input that is
// not a command: a bare slash, "/ text" or a "//" comment.
func Parse(input string) (name, args string, ok bool) {
	input = strings.TrimSpace(input)
	if len(input) < 2 || input[0] != '/' || input[1] == ' ' || input[1] == '/' {
		return "", "", false
	}
	name, args, _ = strings.Cut(input[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(args), true
}

// IsCommand reports whether input should be dispatched as a slash command.
func IsCommand(input string) bool {
	_, _, ok := Parse(input)
	return ok
}

// Lookup resolves a command by name or alias.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name = strings.ToLower(name)
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Dispatch parses a slash command string and executes the matching handler.
// Unknown and forbidden commands produce a reply, not an error.
func (r *Registry) Dispatch(ctx context.Context, input string, cc *CommandContext) (*CommandResult, error) {
	name, args, ok := Parse(input)
	if !ok {
		return &CommandResult{Content: "Type /help for available commands."}, nil
	}

	cmd, ok := r.Lookup(name)
	if !ok {
		msg := fmt.Sprintf("Unknown command: /%s. Type /help for available commands.", name)
		if guess := r.suggest(name, cc); guess != "" {
			msg = fmt.Sprintf("Unknown command: /%s. Did you mean /%s?", name, guess)
		}
		return &CommandResult{Content: msg}, nil
	}
	if cmd.AdminOnly && !cc.Admin {
		return &CommandResult{Content: fmt.Sprintf("/%s is restricted to admins.", cmd.Name)}, nil
	}
	return cmd.Handler(ctx, args, cc)
}

// suggest returns the only visible command that name is a prefix of.
func (r *Registry) suggest(name string, cc *CommandContext) string {
	var match string
	for _, c := range r.Available(cc) {
		if strings.HasPrefix(c.Name, name) {
			if match != "" {
				return ""
			}
			match = c.Name
		}
	}
	return match
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		result = append(result, cmd)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Available returns the commands the caller may run.
func (r *Registry) Available(cc *CommandContext) []*Command {
	all := r.List()
	out := all[:0]
	for _, c := range all {
		if c.AdminOnly && (cc == nil || !cc.Admin) {
			continue
		}
		out = append(out, c)
	}
	return out
}
