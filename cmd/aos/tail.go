package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lebron1212/aos-dev-team-sub000/internal/bus"
	"github.com/spf13/cobra"
)

func tailCmd() *cobra.Command {
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "tail <feedback|workitems|specialist:NAME>",
		Short: "Follow an event stream on the Redis bus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Database.Redis.URL == "" {
				return fmt.Errorf("database.redis.url is not configured")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := newLogger("warn")
			defer logger.Sync()
			b, err := bus.New(ctx, cfg.Database.Redis.URL, "aos-tail", logger)
			if err != nil {
				return err
			}
			defer b.Close()

			enc := json.NewEncoder(os.Stdout)
			for env := range b.Subscribe(ctx, args[0], fromStart) {
				if err := enc.Encode(env); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "replay the stream from its first entry")
	return cmd
}
