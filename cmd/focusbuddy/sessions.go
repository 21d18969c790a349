package main

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/code-100-precent/FocusBuddy/internal/focus"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/config"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/spf13/cobra"
)

func openStore(cfg *config.Config) (store.Store, error) {
	return store.Open(store.Config{
		Type:     cfg.Store.Type,
		Dir:      cfg.Store.Dir,
		InMemory: cfg.Store.InMemory,
		Driver:   cfg.Database.Driver,
		DSN:      cfg.Database.DSN,
	}, logger.Named("store"))
}

// withStore runs fn against the configured store and closes it.
func withStore(ctx context.Context, fn func(ctx context.Context, st store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

func newSessionsCmd() *cobra.Command {
	sessions := &cobra.Command{Use: "sessions", Short: "Browse stored focus sessions"}

	var limit int
	list := &cobra.Command{
		Use:     "list",
		Short:   "List recent sessions, newest first",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				recs, err := st.List(ctx, limit)
				if err != nil {
					return err
				}
				renderSessionList(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of sessions, 0 for all")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show the metrics and summary of one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				rec, err := st.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					data, err := sonic.ConfigStd.MarshalIndent(rec, "", "  ")
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(data))
					return nil
				}
				renderSession(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the full record including events as JSON")

	del := &cobra.Command{
		Use:     "delete <id>",
		Short:   "Delete a stored session and its captures",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				if err := st.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				return nil
			})
		},
	}

	var days int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete sessions that ended more than --days ago",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				if days <= 0 {
					return fmt.Errorf("--days must be positive")
				}
				n, err := pruneOlderThan(ctx, st, days)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "pruned %d sessions\n", n)
				return nil
			})
		},
	}
	prune.Flags().IntVar(&days, "days", 30, "age in days")

	sessions.AddCommand(list, show, del, prune)
	return sessions
}

func pruneOlderThan(ctx context.Context, st store.Store, days int) (int, error) {
	r, err := focus.NewRetention(st, time.Duration(days)*24*time.Hour, "@daily", nil, logger.Lg)
	if err != nil {
		return 0, err
	}
	return r.Prune(ctx)
}
