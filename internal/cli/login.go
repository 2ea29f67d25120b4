package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/navikt/liveroom/internal/auth"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

func newLoginCommand(a *app) *cobra.Command {
	var email, password string
	var save bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the conference backend",
		Long: `Exchanges an email and password for a bearer token. The password is
read from standard input when --password is not given. With --save the
token is written to the config file for later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				var err error
				if password, err = promptPassword(cmd); err != nil {
					return err
				}
			}

			client, err := a.client(cmd, false)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Backend.Timeout)
			defer cancel()

			resp, err := client.Login(ctx, strings.TrimSpace(email), password)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			cmd.Printf("Connecté en tant que %s\n", resp.User.DisplayName())
			if claims, err := auth.ParseTokenClaims(resp.AccessToken); err == nil && !claims.ExpiresAt.IsZero() {
				cmd.Printf("Token valide jusqu'au %s\n", claims.ExpiresAt.Local().Format("02/01/2006 15:04"))
			}

			if !save {
				cmd.Println(resp.AccessToken)
				return nil
			}
			path, err := a.saveToken(resp.AccessToken)
			if err != nil {
				return err
			}
			cmd.Printf("Token %s enregistré dans %s\n", utils.MaskToken(resp.AccessToken), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password (read from stdin when empty)")
	cmd.Flags().BoolVar(&save, "save", false, "store the token in the config file")
	return cmd
}

// promptPassword reads the password without echo when stdin is a terminal
func promptPassword(cmd *cobra.Command) (string, error) {
	cmd.Print("Mot de passe: ")
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// saveToken writes the token into the config file in use, keeping the
// file's other settings and nothing from flags or the environment
func (a *app) saveToken(token string) (string, error) {
	path := a.v.ConfigFileUsed()
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to locate home directory: %w", err)
		}
		path = filepath.Join(home, ".liveroom.yaml")
	}

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	file.Set(config.KeyToken, token)

	if err := file.WriteConfigAs(path); err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return "", fmt.Errorf("failed to restrict config file permissions: %w", err)
	}
	a.v.Set(config.KeyToken, token)
	return path, nil
}
