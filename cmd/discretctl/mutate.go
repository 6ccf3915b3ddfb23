package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var mutateCmd = &cobra.Command{
	Use:   "mutate <source>",
	Short: "Execute a mutation against the open node",
	Args:  cobra.ExactArgs(1),
	RunE:  runMutate,
}

func init() {
	mutateCmd.Flags().StringToString("param", nil, "mutation parameters as key=value")
}

func runMutate(cmd *cobra.Command, args []string) error {
	h, err := sharedHandle(cmd)
	if err != nil {
		return err
	}
	params, _ := cmd.Flags().GetStringToString("param")
	if err := h.Mutate(args[0], parseParams(params)); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "ok")
	return nil
}
