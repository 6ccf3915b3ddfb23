package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/discretlib/discret/internal/uid"
)

var inviteCmd = &cobra.Command{
	Use:   "invite",
	Short: "Create an invite and print its portable bytes, base64-encoded",
	RunE:  runInvite,
}

func init() {
	inviteCmd.Flags().String("room", "", "room to invite into; defaults to the node's private room")
}

func runInvite(cmd *cobra.Command, _ []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	var roomPtr *uid.Uid
	if room, _ := cmd.Flags().GetString("room"); room != "" {
		id, err := uid.Parse(room)
		if err != nil {
			return fmt.Errorf("discretctl: invalid --room: %w", err)
		}
		roomPtr = &id
	}
	b, err := h.Invite(roomPtr)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), base64.StdEncoding.EncodeToString(b))
	return nil
}

var acceptInviteCmd = &cobra.Command{
	Use:   "accept-invite <invite-base64>",
	Short: "Accept a base64-encoded invite produced by \"invite\"",
	Args:  cobra.ExactArgs(1),
	RunE:  runAcceptInvite,
}

func runAcceptInvite(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(args[0])
	if err != nil {
		return fmt.Errorf("discretctl: decode invite: %w", err)
	}
	if err := h.AcceptInvite(b); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
