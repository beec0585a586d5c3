package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/lebron1212/aos-dev-team-sub000/internal/command"
	"github.com/lebron1212/aos-dev-team-sub000/internal/config"
	"github.com/lebron1212/aos-dev-team-sub000/internal/delegation"
	"github.com/lebron1212/aos-dev-team-sub000/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func specialistsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "specialists",
		Short: "Manage the specialist registry offline",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered specialists",
			Args:  cobra.NoArgs,
			RunE: withRegistry(func(ctx context.Context, reg *delegation.Registry, _ []string) error {
				tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSTATUS\tPLATFORM\tCHANNEL\tPURPOSE")
				for _, s := range reg.List() {
					status := "offline"
					if s.IsOnline {
						status = "online"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, status, s.Platform, s.ChannelID, s.Purpose)
				}
				return tw.Flush()
			}),
		},
		&cobra.Command{
			Use:   "add <name> <channel> <purpose> [| cap, cap]",
			Short: "Register or replace a specialist",
			Args:  cobra.MinimumNArgs(3),
			RunE: withRegistry(func(ctx context.Context, reg *delegation.Registry, args []string) error {
				s, err := command.ParseSpecialist(strings.Join(args, " "))
				if err != nil {
					return err
				}
				if err := reg.Register(ctx, s); err != nil {
					return err
				}
				fmt.Printf("registered %s\n", s.Name)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "remove <name>",
			Short: "Remove a specialist",
			Args:  cobra.ExactArgs(1),
			RunE: withRegistry(func(ctx context.Context, reg *delegation.Registry, args []string) error {
				if err := reg.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", args[0])
				return nil
			}),
		},
	)
	return cmd
}

type registryFunc func(ctx context.Context, reg *delegation.Registry, args []string) error

// withRegistry opens the configured specialist store, Postgres when a DSN is
// set and the YAML file otherwise.
func withRegistry(fn registryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		logger := newLogger("warn")
		defer logger.Sync()

		specStore, closeFn, err := openSpecialistStore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeFn()

		reg := delegation.NewRegistry(specStore, logger)
		reg.SetDefaultPlatform(cfg.Specialists.DefaultPlatform)
		if err := reg.Load(ctx); err != nil {
			return fmt.Errorf("load specialists: %w", err)
		}
		return fn(ctx, reg, args)
	}
}

func openSpecialistStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (delegation.Store, func(), error) {
	if cfg.Database.Postgres.DSN == "" {
		return delegation.NewFileStore(cfg.Specialists.File), func() {}, nil
	}
	pg, err := store.New(ctx, cfg.Database.Postgres.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx, cfg.Database.Postgres.Migrations); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg.Specialists(), pg.Close, nil
}
