// Package cli implements the liveroom command line: the web server plus
// thin commands over the conference backend.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrNoToken is returned by commands that need a signed-in user
var ErrNoToken = errors.New("no token configured, run `liveroom login --save` or set LIVEROOM_TOKEN")

// app carries the state shared by all commands of one invocation
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
}

// NewRootCommand builds the liveroom command tree
func NewRootCommand() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "liveroom",
		Short: "Live session rooms for virtual conferences",
		Long: `liveroom serves the live session pages of a virtual conference:
the embedded video room, the organizer's session panel and the public
schedule. Its subcommands also talk to the conference backend directly.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.liveroom.yaml)")
	flags.String("backend-url", "", "base URL of the conference backend")
	flags.String("token", "", "bearer token used for backend calls")
	flags.Duration("timeout", 0, "timeout of backend calls")

	cobra.CheckErr(a.v.BindPFlag(config.KeyBackendBaseURL, flags.Lookup("backend-url")))
	cobra.CheckErr(a.v.BindPFlag(config.KeyToken, flags.Lookup("token")))
	cobra.CheckErr(a.v.BindPFlag(config.KeyBackendTimeout, flags.Lookup("timeout")))

	rootCmd.AddCommand(
		newServeCommand(a),
		newLoginCommand(a),
		newAccessCommand(a),
		newSessionsCommand(a),
	)
	return rootCmd
}

// Execute runs the command line and exits non-zero on failure
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set
func (a *app) initConfig(cmd *cobra.Command) error {
	config.SetDefaults(a.v)

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			a.v.AddConfigPath(home)
		}
		a.v.SetConfigType("yaml")
		a.v.SetConfigName(".liveroom")
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			if a.cfgFile == "" || !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	a.cfg = config.Load(a.v)
	if !a.cfg.Backend.IsBackendConfigValid() {
		return errors.New("backend base URL is not configured")
	}
	return nil
}

// client returns a backend client. Commands that need a user pass authed.
func (a *app) client(cmd *cobra.Command, authed bool) (*registry.Client, error) {
	client := registry.NewClient(a.cfg.Backend.BaseURL, a.cfg.Backend.Timeout)
	client.SetMetrics(metrics.Default())
	if !authed {
		return client, nil
	}

	token := strings.TrimSpace(a.cfg.Token)
	if token == "" {
		return nil, ErrNoToken
	}
	return client.As(&staticToken{token: token, cmd: cmd}), nil
}

// staticToken is the token source of a command line invocation
type staticToken struct {
	token string
	cmd   *cobra.Command
}

func (s *staticToken) Token() string {
	return s.token
}

func (s *staticToken) Invalidate(_ context.Context, reason string) {
	s.cmd.PrintErrf("Token %s was rejected (%s); run `liveroom login --save` again\n", utils.MaskToken(s.token), reason)
}
