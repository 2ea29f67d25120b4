package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/navikt/liveroom/internal/gate"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/spf13/cobra"
)

func newAccessCommand(a *app) *cobra.Command {
	accessCmd := &cobra.Command{
		Use:   "access",
		Short: "Inspect live session access",
	}

	accessCmd.AddCommand(&cobra.Command{
		Use:   "check <conference-id>",
		Short: "Check whether the signed-in user may join a conference's live session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			result := gate.New(client, metrics.Default()).Check(ctx, conferenceID)
			switch {
			case result.Err != nil:
				return fmt.Errorf("%s: %w", gate.CheckFailedMessage, result.Err)
			case result.CanJoin:
				cmd.Printf("Accès autorisé à la session %d %q\n", result.Session.ID, result.Session.Title)
			default:
				reason := result.Reason
				if reason == "" {
					reason = "aucune session active"
				}
				cmd.Printf("Session non disponible: %s\n", reason)
			}
			return nil
		},
	})
	return accessCmd
}

func parseID(value, name string) (int, error) {
	id, err := strconv.Atoi(value)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return id, nil
}
