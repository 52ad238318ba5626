package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gregriff/parley/internal/app"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateEmail(viper.GetString("login.email")); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
		if viper.GetString("login.password") == "" {
			return fmt.Errorf("must specify a password")
		}
		return nil
	},
	RunE: withApp(login),
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the remembered session",
	Args:  cobra.NoArgs,
	RunE: withApp(func(_ context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
		if err := a.Logout(); err != nil {
			return fmt.Errorf("error logging out: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)

	loginCmd.Flags().String("email", "", "email address")
	loginCmd.Flags().String("password", "", "password (or set PARLEY_LOGIN_PASSWORD)")
	_ = viper.BindPFlag("login.email", loginCmd.Flags().Lookup("email"))
	_ = viper.BindPFlag("login.password", loginCmd.Flags().Lookup("password"))
}

func login(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	user, err := a.Login(ctx, viper.GetString("login.email"), viper.GetString("login.password"))
	if err != nil {
		return fmt.Errorf("error logging in: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", user.Name)
	return nil
}
