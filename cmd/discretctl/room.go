package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var roomCmd = &cobra.Command{Use: "room", Short: "Inspect rooms this node holds"}

var roomIDCmd = &cobra.Command{
	Use:   "id",
	Short: "Print this node's auto-created private room id",
	RunE:  runRoomID,
}

var roomListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every room id this node currently holds data for",
	RunE:  runRoomList,
}

func init() {
	roomCmd.AddCommand(roomIDCmd, roomListCmd)
}

func runRoomID(cmd *cobra.Command, _ []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.PrivateRoom())
	return nil
}

func runRoomList(cmd *cobra.Command, _ []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rooms, err := h.Rooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		fmt.Fprintln(cmd.OutOrStdout(), r)
	}
	return nil
}
