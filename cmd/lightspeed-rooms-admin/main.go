package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/tcriess/lightspeed-rooms/config"
	"github.com/tcriess/lightspeed-rooms/globals"
	"github.com/tcriess/lightspeed-rooms/persistence"
	"github.com/tcriess/lightspeed-rooms/types"
)

// A very simple CLI tool for the administration of lightspeed-rooms rooms and users.

var (
	configPath string
	persister  persistence.Persister
)

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// definition returns the reader of a JSON definition given on the command line, "-" reads from STDIN.
func definition(arg string) io.Reader {
	if arg == "-" {
		return os.Stdin
	}
	return bytes.NewReader([]byte(arg))
}

func roomByName(ctx context.Context, name string) (*types.Room, error) {
	room, err := persister.GetRoomByName(ctx, types.NormalizeRoomName(name))
	if err != nil {
		return nil, fmt.Errorf("could not get room %s: %w", name, err)
	}
	return room, nil
}

func main() {
	flagSet := config.GetFlagSet()
	ctx := context.Background()

	var rootCmd = &cobra.Command{
		Use:          "lightspeed-rooms-admin",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			globalConfig, err := config.ReadConfiguration(configPath, flagSet)
			if err != nil {
				return err
			}
			globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
			persister, err = persistence.NewPersister(globalConfig)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if persister == nil {
				return nil
			}
			return persister.Close()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file or directory")
	rootCmd.PersistentFlags().AddFlagSet(flagSet)

	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms, users, admins or bans",
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all rooms, including the private ones.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := persister.GetRooms(ctx)
			if err != nil {
				return err
			}
			return printJSON(rooms)
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomByName(ctx, args[0])
			if err != nil {
				return err
			}
			occupants, err := persister.GetOccupants(ctx, room.Id)
			if err != nil {
				return err
			}
			return printJSON(struct {
				*types.Room
				Occupants []*types.User `json:"occupants"`
			}{room, occupants})
		},
	}
	var cmdShowUsers = &cobra.Command{
		Use:   "users",
		Short: "Show users",
		Long:  `shows a listing of all users.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := persister.GetUsers(ctx)
			if err != nil {
				return err
			}
			return printJSON(users)
		},
	}
	var cmdShowUser = &cobra.Command{
		Use:   "user [user name]",
		Short: "Show user",
		Long:  `show user prints detail information about the user with the given name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := persister.GetUserByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("could not get user %s: %w", args[0], err)
			}
			return printJSON(user)
		},
	}
	var cmdShowAdmins = &cobra.Command{
		Use:   "admins [room name]",
		Short: "Show admins",
		Long:  `show admins lists the adminships of the room with the given name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomByName(ctx, args[0])
			if err != nil {
				return err
			}
			adminships, err := persister.GetAdminships(ctx, room.Id)
			if err != nil {
				return err
			}
			return printJSON(adminships)
		},
	}
	var cmdShowBans = &cobra.Command{
		Use:   "bans [room name]",
		Short: "Show bans",
		Long:  `show bans lists the active and lifted bans of the room with the given name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomByName(ctx, args[0])
			if err != nil {
				return err
			}
			bans, err := persister.GetBans(ctx, room.Id)
			if err != nil {
				return err
			}
			return printJSON(bans)
		},
	}
	var cmdDelete = &cobra.Command{
		Use:   "delete",
		Short: "delete room or user",
		Long:  `delete removes the user or room with a given name.`,
	}
	var cmdDeleteRoom = &cobra.Command{
		Use:   "room [room name]",
		Short: "Delete room",
		Long:  `delete room removes the room with the given name together with its adminships, bans and messages.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := roomByName(ctx, args[0])
			if err != nil {
				return err
			}
			return persister.DeleteRoom(ctx, room)
		},
	}
	var cmdDeleteUser = &cobra.Command{
		Use:   "user [user name]",
		Short: "Delete user",
		Long:  `delete user removes the user with the given name.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := persister.GetUserByName(ctx, args[0])
			if err != nil {
				return fmt.Errorf("could not get user %s: %w", args[0], err)
			}
			return persister.DeleteUser(ctx, user)
		},
	}
	var cmdSet = &cobra.Command{
		Use:   "set",
		Short: "create/update room or user",
		Long:  `set creates or updates a room or user.`,
	}
	var cmdSetRoom = &cobra.Command{
		Use:   "room [room definition]",
		Short: "Set room",
		Long:  `set room creates or updates a room. If the room definition is "-", the definition is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room := types.Room{}
			if err := json.NewDecoder(definition(args[0])).Decode(&room); err != nil {
				return fmt.Errorf("could not decode room: %w", err)
			}
			room.Name = types.NormalizeRoomName(room.Name)
			if room.Name == "" {
				return fmt.Errorf("no room name")
			}
			if room.Id == "" {
				room.Id = uuid.NewString()
				if old, err := persister.GetRoomByName(ctx, room.Name); err == nil {
					room.Id = old.Id
				}
			}
			if room.OwnerId == "" && !room.Private {
				globals.AppLogger.Warn("no owner set")
			} else if room.OwnerId != "" {
				if _, err := persister.GetUser(ctx, room.OwnerId); err != nil {
					return fmt.Errorf("could not get owner %s: %w", room.OwnerId, err)
				}
			}
			if room.CreatedAt.IsZero() {
				room.CreatedAt = time.Now().UTC()
			}
			return persister.StoreRoom(ctx, &room)
		},
	}
	var cmdSetUser = &cobra.Command{
		Use:   "user [user definition]",
		Short: "Set user",
		Long:  `set user creates or updates a user with the given definition. If the user definition is "-", it is read from STDIN.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user := types.User{}
			if err := json.NewDecoder(definition(args[0])).Decode(&user); err != nil {
				return fmt.Errorf("could not decode user: %w", err)
			}
			if user.Id == "" || user.Name == "" {
				return fmt.Errorf("user id and name are required")
			}
			if user.CreatedAt.IsZero() {
				user.CreatedAt = time.Now().UTC()
			}
			globals.AppLogger.Info("storing user", "id", user.Id, "name", user.Name)
			return persister.StoreUser(ctx, &user)
		},
	}
	rootCmd.AddCommand(cmdShow, cmdDelete, cmdSet)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom, cmdShowUsers, cmdShowUser, cmdShowAdmins, cmdShowBans)
	cmdDelete.AddCommand(cmdDeleteRoom, cmdDeleteUser)
	cmdSet.AddCommand(cmdSetRoom, cmdSetUser)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
