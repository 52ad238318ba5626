package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gregriff/parley/internal/app"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	Args:  cobra.NoArgs,
	RunE:  withApp(whoami),
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func whoami(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	user, err := a.API.Profile(ctx)
	if err != nil {
		return fmt.Errorf("error fetching profile: %w", err)
	}
	if err := a.Store.UpdateUser(user); err != nil {
		return fmt.Errorf("error saving profile: %w", err)
	}
	printUser(cmd.OutOrStdout(), user)
	return nil
}
