package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/theory-cloud/musicapi/pkg/devtoken"
)

func newDevTokenCmd() *cobra.Command {
	var keyFile, teamID, keyID string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Sign an Apple Music developer token from a .p8 key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if keyFile == "" {
				return errors.New("--key-file is required")
			}
			raw, err := os.ReadFile(keyFile)
			if err != nil {
				return err
			}
			token, err := devtoken.Sign(devtoken.NormalizeKey(string(raw)), teamID, keyID, time.Now(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "path to the PEM encoded private key")
	cmd.Flags().StringVar(&teamID, "team-id", os.Getenv("APPLE_TEAM_ID"), "Apple team id (token issuer)")
	cmd.Flags().StringVar(&keyID, "key-id", os.Getenv("APPLE_KEY_ID"), "Apple key id (kid header)")
	cmd.Flags().DurationVar(&ttl, "ttl", devtoken.DefaultTTL, "token lifetime")
	return cmd
}
