package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/code-100-precent/FocusBuddy/cmd/bootstrap"
	"github.com/code-100-precent/FocusBuddy/internal/focus"
	"github.com/code-100-precent/FocusBuddy/internal/store"
	"github.com/code-100-precent/FocusBuddy/pkg/events"
	"github.com/code-100-precent/FocusBuddy/pkg/logger"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		minutes int
		tags    []string
		notes   string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one focus session in the terminal",
		Long: `Run one focus session in the terminal. Check-in prompts are printed as
they arrive; type a line to answer. Ctrl-C or "/stop" ends the session.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := bootstrap.NewApp(ctx, cfg, logger.Lg)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			return runSession(ctx, app.Service, focus.StartRequest{
				Duration: time.Duration(minutes) * time.Minute,
				Tags:     tags,
				Notes:    notes,
			}, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&minutes, "duration", "d", 0, "planned minutes, default from SESSION_DEFAULT_DURATION")
	cmd.Flags().StringSliceVarP(&tags, "tags", "t", nil, "session tags")
	cmd.Flags().StringVar(&notes, "notes", "", "what you plan to work on")
	return cmd
}

// runSession starts a session, prints prompts and answers with stdin lines
// until the session ends, ctx is cancelled or the user types /stop.
func runSession(ctx context.Context, svc *focus.Service, req focus.StartRequest, in io.Reader, out io.Writer) error {
	ended := make(chan store.Record, 1)
	unsubscribe := svc.Bus().Subscribe(events.TopicAll, func(ev events.Event) {
		switch ev.Type {
		case events.TopicCheckInPrompt:
			if data, ok := ev.Data.(map[string]string); ok {
				_, _ = fmt.Fprintln(out, promptStyle.Render("› "+data["prompt"]))
			}
		case events.TopicSessionEnded:
			if rec, ok := ev.Data.(store.Record); ok {
				select {
				case ended <- rec:
				default:
				}
			}
		}
	})
	defer unsubscribe()

	sess, err := svc.Start(ctx, req)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s planned %s\n", titleStyle.Render("Focus session "+sess.ID), sess.PlannedDuration)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return finish(svc, out)
		case rec := <-ended:
			if rec.ID != sess.ID {
				continue
			}
			renderSession(out, rec)
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed, keep running until the session ends
				lines = nil
				continue
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
			case "/stop":
				return finish(svc, out)
			case "/capture":
				if err := svc.CaptureNow(); err != nil {
					_, _ = fmt.Fprintln(out, "capture:", err)
				}
			default:
				if _, err := svc.Respond(line); err != nil {
					_, _ = fmt.Fprintln(out, "not recorded:", err)
				}
			}
		}
	}
}

func finish(svc *focus.Service, out io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	rec, err := svc.Stop(ctx)
	if err != nil {
		return err
	}
	renderSession(out, rec)
	return nil
}
