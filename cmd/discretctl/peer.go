package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var peerCmd = &cobra.Command{Use: "peer", Short: "Peer connection and synchronisation"}

var peerConnectCmd = &cobra.Command{
	Use:   "connect <addr>",
	Short: "Dial a peer, prove identity, and synchronise every shared room",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerConnect,
}

var peerServeCmd = &cobra.Command{
	Use:   "serve <addr>",
	Short: "Listen for incoming peer connections until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runPeerServe,
}

func init() {
	peerCmd.AddCommand(peerConnectCmd, peerServeCmd)
}

func runPeerConnect(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	if err := h.Connect(cmd.Context(), args[0], nil); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "synchronised")
	return nil
}

func runPeerServe(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", args[0])
	return h.ListenAndServe(ctx, args[0])
}
