package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gregriff/parley/internal/app"
	"github.com/gregriff/parley/internal/models"
)

var roomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "Invoke actions on chat rooms",
}

var listRoomsCmd = &cobra.Command{
	Use:   "list",
	Short: "List chat rooms",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, _ []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		rooms, err := a.API.ListRooms(ctx)
		if err != nil {
			return fmt.Errorf("error listing rooms: %w", err)
		}
		printRooms(cmd.OutOrStdout(), rooms)
		return nil
	}),
}

var getRoomCmd = &cobra.Command{
	Use:   "get [room-id]",
	Short: "Show a chat room",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		r, err := a.API.GetRoom(ctx, args[0])
		if err != nil {
			return fmt.Errorf("error fetching room: %w", err)
		}
		printRoom(cmd.OutOrStdout(), r)
		return nil
	}),
}

var createRoomCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a chat room",
	Long: `Arguments:
      name    The name of the room (required)
	`,
	Args: cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateRoomName(args[0]); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("max-participants")
		if limit < 0 {
			return errors.New("max-participants cannot be negative")
		}
		return nil
	},
	RunE: withApp(createRoom),
}

var joinRoomCmd = &cobra.Command{
	Use:   "join [room-id]",
	Short: "Become a member of a chat room",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		if err := a.API.JoinRoom(ctx, args[0]); err != nil {
			return fmt.Errorf("error joining room: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Joined room %s\n", args[0])
		return nil
	}),
}

var leaveRoomCmd = &cobra.Command{
	Use:   "leave [room-id]",
	Short: "Leave a chat room",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
		if _, err := a.RequireSession(); err != nil {
			return err
		}
		if err := a.API.LeaveRoom(ctx, args[0]); err != nil {
			return fmt.Errorf("error leaving room: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Left room %s\n", args[0])
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(roomsCmd)
	roomsCmd.AddCommand(listRoomsCmd, getRoomCmd, createRoomCmd, joinRoomCmd, leaveRoomCmd)

	createRoomCmd.Flags().String("description", "", "what the room is about")
	createRoomCmd.Flags().Bool("private", false, "make the room invite only")
	createRoomCmd.Flags().Int("max-participants", 0, "member limit, 0 for none")
}

func createRoom(ctx context.Context, cmd *cobra.Command, a *app.App, args []string) error {
	if _, err := a.RequireSession(); err != nil {
		return err
	}
	description, _ := cmd.Flags().GetString("description")
	private, _ := cmd.Flags().GetBool("private")
	limit, _ := cmd.Flags().GetInt("max-participants")

	created, err := a.API.CreateRoom(ctx, models.NewRoom{
		Name:            args[0],
		Description:     description,
		IsPrivate:       private,
		MaxParticipants: limit,
	})
	if err != nil {
		return fmt.Errorf("error creating room: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created room %s (%s)\n", created.Name, created.ID)
	return nil
}

func validateRoomName(name string) error {
	if name == "" {
		return errors.New("must specify a room name")
	}
	if len([]rune(name)) > 50 {
		return errors.New("room name too long. Must be 50 characters or less")
	}
	return nil
}
