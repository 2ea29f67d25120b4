package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/models"
	"github.com/navikt/liveroom/internal/service"
	"github.com/spf13/cobra"
)

func newSessionsCommand(a *app) *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage a conference's live sessions",
	}

	sessionsCmd.AddCommand(
		&cobra.Command{
			Use:   "list <conference-id>",
			Short: "List a conference's sessions (organizer)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.listSessions(cmd, args[0], true)
			},
		},
		&cobra.Command{
			Use:   "public <conference-id>",
			Short: "Show a conference's public schedule",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.listSessions(cmd, args[0], false)
			},
		},
		&cobra.Command{
			Use:   "active <conference-id>",
			Short: "Show the conference's active session",
			Args:  cobra.ExactArgs(1),
			RunE:  a.showActiveSession,
		},
		newCreateSessionCommand(a),
		a.transitionCommand("start", "Start a pending session", (*service.Panel).Start),
		a.transitionCommand("stop", "Stop an active session", (*service.Panel).Stop),
		newDeleteSessionCommand(a),
	)
	return sessionsCmd
}

// panel returns the organizer panel of a conference. Its notifications are
// printed, failures on stderr.
func (a *app) panel(cmd *cobra.Command, conferenceID int) (*service.Panel, error) {
	client, err := a.client(cmd, true)
	if err != nil {
		return nil, err
	}

	notifier := service.NotifierFunc(func(n models.Notification) {
		if n.Variant == models.NotificationDestructive {
			cmd.PrintErrf("%s: %s\n", n.Title, n.Description)
			return
		}
		cmd.Printf("%s: %s\n", n.Title, n.Description)
	})
	return service.NewPanel(client, conferenceID, notifier, metrics.Default()), nil
}

// runMutation runs a panel operation and prints the refreshed list after it
func (a *app) runMutation(cmd *cobra.Command, conferenceID int, op func(context.Context, *service.Panel) error) error {
	panel, err := a.panel(cmd, conferenceID)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backend.Timeout)
	defer cancel()

	if err := op(ctx, panel); err != nil {
		return err
	}
	if panel.Loaded() {
		return printSessions(cmd, panel.Sessions())
	}
	return nil
}

func (a *app) listSessions(cmd *cobra.Command, arg string, organizer bool) error {
	conferenceID, err := parseID(arg, "conference id")
	if err != nil {
		return err
	}
	client, err := a.client(cmd, organizer)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backend.Timeout)
	defer cancel()

	var sessions []models.LiveSession
	if organizer {
		sessions, err = client.ListSessions(ctx, conferenceID)
	} else {
		sessions, err = client.ListPublicSessions(ctx, conferenceID)
	}
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	return printSessions(cmd, sessions)
}

func printSessions(cmd *cobra.Command, sessions []models.LiveSession) error {
	if len(sessions) == 0 {
		cmd.Println("Aucune session live pour cette conférence.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITRE\tDATE\tSTATUT")
	for _, s := range sessions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Title, formatSessionTime(s.SessionTime), s.Status.Label())
	}
	return w.Flush()
}

func (a *app) showActiveSession(cmd *cobra.Command, args []string) error {
	conferenceID, err := parseID(args[0], "conference id")
	if err != nil {
		return err
	}
	client, err := a.client(cmd, true)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backend.Timeout)
	defer cancel()

	session, err := client.ActiveSession(ctx, conferenceID)
	if err != nil {
		return fmt.Errorf("failed to fetch the active session: %w", err)
	}
	if session == nil {
		cmd.Println("Aucune session active")
		return nil
	}
	cmd.Printf("%d\t%s\tdémarrée %s\n", session.ID, session.Title, formatStarted(session.StartedAt))
	return nil
}

func newCreateSessionCommand(a *app) *cobra.Command {
	var title, at string

	cmd := &cobra.Command{
		Use:   "create <conference-id>",
		Short: "Schedule a new session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conferenceID, err := parseID(args[0], "conference id")
			if err != nil {
				return err
			}

			// A missing time is reported by the panel like a missing title
			var sessionTime time.Time
			if strings.TrimSpace(at) != "" {
				if sessionTime, err = models.ParseTimestamp(at); err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
			}

			return a.runMutation(cmd, conferenceID, func(ctx context.Context, p *service.Panel) error {
				return p.Create(ctx, title, sessionTime)
			})
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "session title")
	cmd.Flags().StringVar(&at, "at", "", "scheduled time, e.g. 2025-05-08T15:00")
	return cmd
}

func (a *app) transitionCommand(name, short string, op func(*service.Panel, context.Context, int) error) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <conference-id> <session-id>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conferenceID, sessionID, err := parseIDs(args)
			if err != nil {
				return err
			}
			return a.runMutation(cmd, conferenceID, func(ctx context.Context, p *service.Panel) error {
				return op(p, ctx, sessionID)
			})
		},
	}
}

func newDeleteSessionCommand(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <conference-id> <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			conferenceID, sessionID, err := parseIDs(args)
			if err != nil {
				return err
			}

			err = a.runMutation(cmd, conferenceID, func(ctx context.Context, p *service.Panel) error {
				return p.Delete(ctx, sessionID, yes)
			})
			if errors.Is(err, service.ErrConfirmationRequired) {
				return fmt.Errorf("deletion is irreversible, confirm with --yes: %w", err)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func parseIDs(args []string) (int, int, error) {
	conferenceID, err := parseID(args[0], "conference id")
	if err != nil {
		return 0, 0, err
	}
	sessionID, err := parseID(args[1], "session id")
	if err != nil {
		return 0, 0, err
	}
	return conferenceID, sessionID, nil
}

func formatStarted(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return formatSessionTime(*t)
}

func formatSessionTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("02/01/2006 15:04")
}
