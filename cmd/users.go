package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gregriff/parley/internal/app"
	"github.com/gregriff/parley/internal/models"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Invoke actions on users",
}

var listUsersCmd = &cobra.Command{
	Use:   "list",
	Short: "List users",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		users, err := a.API.ListUsers(ctx)
		if err != nil {
			return fmt.Errorf("error listing users: %w", err)
		}
		printUsers(cmd.OutOrStdout(), users)
		return nil
	}),
}

var getUserCmd = &cobra.Command{
	Use:   "get [user-id]",
	Short: "Show a user",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		user, err := a.API.GetUser(ctx, args[0])
		if err != nil {
			return fmt.Errorf("error fetching user: %w", err)
		}
		printUser(cmd.OutOrStdout(), user)
		return nil
	}),
}

var updateUserCmd = &cobra.Command{
	Use:   "update [user-id]",
	Short: "Change a user's name or email",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if name == "" && email == "" {
			return errors.New("nothing to update, set --name or --email")
		}
		if name != "" {
			if err := validateName(name); err != nil {
				return fmt.Errorf("invalid name: %w", err)
			}
		}
		if email != "" {
			if err := validateEmail(email); err != nil {
				return fmt.Errorf("invalid email: %w", err)
			}
		}
		return nil
	},
	RunE: withApp(updateUser),
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete [user-id]",
	Short: "Delete a user",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		s, err := a.RequireSession()
		if err != nil {
			return err
		}
		if err := a.API.DeleteUser(ctx, args[0]); err != nil {
			return fmt.Errorf("error deleting user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])

		if args[0] == s.UserID {
			return a.Logout()
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(listUsersCmd, getUserCmd, updateUserCmd, deleteUserCmd)

	updateUserCmd.Flags().String("name", "", "new display name")
	updateUserCmd.Flags().String("email", "", "new email address")
}

func updateUser(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
	s, err := a.RequireSession()
	if err != nil {
		return err
	}
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")

	user, err := a.API.UpdateUser(ctx, args[0], models.UpdateUser{Name: name, Email: email})
	if err != nil {
		return fmt.Errorf("error updating user: %w", err)
	}
	if user.ID == s.UserID {
		if err := a.Store.UpdateUser(user); err != nil {
			return fmt.Errorf("error saving profile: %w", err)
		}
	}
	printUser(cmd.OutOrStdout(), user)
	return nil
}
