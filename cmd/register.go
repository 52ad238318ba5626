package cmd

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gregriff/parley/internal/app"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	Args:  cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateName(viper.GetString("register.name")); err != nil {
			return fmt.Errorf("invalid name: %w", err)
		}
		if err := validateEmail(viper.GetString("register.email")); err != nil {
			return fmt.Errorf("invalid email: %w", err)
		}
		if err := validatePassword(viper.GetString("register.password")); err != nil {
			return fmt.Errorf("invalid password: %w", err)
		}
		return nil
	},
	RunE: withApp(registerUser),
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().String("name", "", "display name")
	registerCmd.Flags().String("email", "", "email address")
	registerCmd.Flags().String("password", "", "password (or set PARLEY_REGISTER_PASSWORD)")
	for _, flagName := range []string{"name", "email", "password"} {
		_ = viper.BindPFlag("register."+flagName, registerCmd.Flags().Lookup(flagName))
	}
}

func registerUser(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
	name, email, password := viper.GetString("register.name"),
		viper.GetString("register.email"),
		viper.GetString("register.password")

	user, err := a.Register(ctx, name, email, password)
	if err != nil {
		return fmt.Errorf("error during registration: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s (%s)\n", user.Name, user.Email)
	return nil
}

var validEmail = regexp.MustCompile(`^\S+@\S+\.\S+$`)

func validateName(name string) error {
	if len(name) == 0 {
		return errors.New("empty name")
	}
	if len([]rune(name)) < 2 {
		return errors.New("name too short. Must be 2 characters or more")
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) == 0 {
		return errors.New("empty email")
	}
	if !validEmail.MatchString(email) {
		return errors.New("not an email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) == 0 {
		return errors.New("empty password")
	}
	if len(password) < 6 {
		return errors.New("password too short. Must be 6 characters or more")
	}
	return nil
}
