package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <source>",
	Short: "Tombstone one entity row, given its id as --param id=<id>",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

func init() {
	deleteCmd.Flags().StringToString("param", nil, "delete parameters as key=value, must include id")
}

func runDelete(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	params, _ := cmd.Flags().GetStringToString("param")
	if err := h.Delete(args[0], parseParams(params)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
