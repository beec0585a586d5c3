package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lebron1212/aos-dev-team-sub000/internal/gateway"
	"github.com/lebron1212/aos-dev-team-sub000/internal/workitem"
)

// WorkItems is the read side of the work item registry.
type WorkItems interface {
	Get(id string) (*workitem.WorkItem, bool)
	ForUser(userID string) []*workitem.WorkItem
}

// StatusProvider reports transport adapter state.
type StatusProvider interface {
	StatusAll() []gateway.AdapterStatus
}

// RegisterBuiltins registers /help, /work and /status.
func RegisterBuiltins(reg *Registry, items WorkItems, status StatusProvider) {
	reg.Register(helpCommand(reg))
	reg.Register(workCommand(items))
	reg.Register(statusCommand(status))
}

func helpCommand(reg *Registry) *Command {
	return &Command{
		Name:        "help",
		Description: "List all available commands",
		Usage:       "/help",
		Handler: func(_ context.Context, _ string, cc *CommandContext) (*CommandResult, error) {
			var b strings.Builder
			b.WriteString("Available commands:\n")
			for _, c := range reg.Available(cc) {
				fmt.Fprintf(&b, "  /%s: %s\n", c.Name, c.Description)
				if c.Usage != "" {
					fmt.Fprintf(&b, "    Usage: %s\n", c.Usage)
				}
				if len(c.Aliases) > 0 {
					fmt.Fprintf(&b, "    Also: /%s\n", strings.Join(c.Aliases, ", /"))
				}
			}
			return &CommandResult{Content: b.String()}, nil
		},
	}
}

func workCommand(items WorkItems) *Command {
	return &Command{
		Name:        "work",
		Aliases:     []string{"workitems", "items"},
		Description: "Show your work items, or one item by id",
		Usage:       "/work [id]",
		Handler: func(_ context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			now := time.Now()
			if id := strings.TrimSpace(args); id != "" {
				w, ok := items.Get(id)
				if !ok {
					return &CommandResult{Content: fmt.Sprintf("Work item %q not found.", id)}, nil
				}
				return &CommandResult{Content: workitem.Describe(w, now), Data: w}, nil
			}
			list := items.ForUser(cc.UserID)
			if len(list) == 0 {
				return &CommandResult{Content: "You have no work items."}, nil
			}
			var b strings.Builder
			b.WriteString("Your work items:\n")
			for _, w := range list {
				fmt.Fprintf(&b, "  %s\n", workitem.Describe(w, now))
			}
			return &CommandResult{Content: b.String(), Data: list}, nil
		},
	}
}

func statusCommand(sp StatusProvider) *Command {
	return &Command{
		Name:        "status",
		Description: "Show transport connection status",
		Usage:       "/status",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			statuses := sp.StatusAll()
			if len(statuses) == 0 {
				return &CommandResult{Content: "No transports registered."}, nil
			}
			var b strings.Builder
			b.WriteString("Transports:\n")
			for _, s := range statuses {
				state := "disconnected"
				if s.Connected {
					state = "connected"
				}
				fmt.Fprintf(&b, "  %s: %s", s.Platform, state)
				if s.Error != "" {
					fmt.Fprintf(&b, " (%s)", s.Error)
				}
				b.WriteString("\n")
			}
			return &CommandResult{Content: b.String(), Data: statuses}, nil
		},
	}
}
