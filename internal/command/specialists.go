package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
)

// Specialists is the part of the delegation layer the commands drive.
type Specialists interface {
	Register(ctx context.Context, s delegation.Specialist) error
	Remove(ctx context.Context, name string) error
	SetOnline(ctx context.Context, name string, online bool) error
}

// StatusReporter renders the specialist roster.
type StatusReporter interface {
	Status() string
}

// RegisterSpecialistCommands registers /specialists and the admin-only
// /specialist.
func RegisterSpecialistCommands(reg *Registry, specialists Specialists, status StatusReporter) {
	reg.Register(&Command{
		Name:        "specialists",
		Description: "Show registered specialists",
		Usage:       "/specialists",
		Handler: func(_ context.Context, _ string, _ *CommandContext) (*CommandResult, error) {
			return &CommandResult{Content: status.Status()}, nil
		},
	})
	reg.Register(specialistCommand(specialists))
}

const specialistUsage = "/specialist add <name> <channel> <purpose> [| cap, cap] | remove <name> | online <name> | offline <name>"

func specialistCommand(specialists Specialists) *Command {
	return &Command{
		Name:        "specialist",
		Description: "Manage specialists",
		Usage:       specialistUsage,
		AdminOnly:   true,
		Handler: func(ctx context.Context, args string, cc *CommandContext) (*CommandResult, error) {
			fields := strings.Fields(args)
			if len(fields) < 2 {
				return &CommandResult{Content: "Usage: " + specialistUsage}, nil
			}
			verb, name := strings.ToLower(fields[0]), fields[1]

			var err error
			switch verb {
			case "add":
				s, perr := ParseSpecialist(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(args), fields[0])))
				if perr != nil {
					return &CommandResult{Content: perr.Error() + "\nUsage: " + specialistUsage}, nil
				}
				s.Platform = cc.Platform
				if err = specialists.Register(ctx, s); err == nil {
					return &CommandResult{Content: fmt.Sprintf("Specialist %s registered.", s.Name), Data: s}, nil
				}
			case "remove":
				if err = specialists.Remove(ctx, name); err == nil {
					return &CommandResult{Content: fmt.Sprintf("Specialist %s removed.", name)}, nil
				}
			case "online", "offline":
				if err = specialists.SetOnline(ctx, name, verb == "online"); err == nil {
					return &CommandResult{Content: fmt.Sprintf("Specialist %s is now %s.", name, verb)}, nil
				}
			default:
				return &CommandResult{Content: "Usage: " + specialistUsage}, nil
			}
			return &CommandResult{Content: fmt.Sprintf("Could not %s specialist %s: %v", verb, name, err)}, nil
		},
	}
}

// ParseSpecialist reads "<name> <channel> <purpose> [| cap, cap]". The
// result is marked online.
func ParseSpecialist(s string) (delegation.Specialist, error) {
	head, caps, _ := strings.Cut(s, "|")
	fields := strings.Fields(head)
	if len(fields) < 3 {
		return delegation.Specialist{}, fmt.Errorf("name, channel and purpose are required")
	}
	sp := delegation.Specialist{
		Name:      fields[0],
		ChannelID: fields[1],
		Purpose:   strings.Join(fields[2:], " "),
		IsOnline:  true,
	}
	for _, c := range strings.Split(caps, ",") {
		if c = strings.TrimSpace(c); c != "" {
			sp.Capabilities = append(sp.Capabilities, c)
		}
	}
	return sp, nil
}
