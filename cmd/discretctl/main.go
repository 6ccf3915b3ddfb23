// Command discretctl is the reference CLI for a Discret node: open a
// database, run mutations/queries/deletes against it, manage invites, and
// drive peer synchronisation, all against the same embedding API any Go
// program would use (github.com/discretlib/discret).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{Use: "discretctl", Short: "Discret node control CLI"}
	root.PersistentFlags().String("model", "", "path to the schema DSL file")
	root.PersistentFlags().String("app-name", "discretctl", "application name passed to discret.New")
	root.PersistentFlags().String("key", "", "path to a file holding 32 bytes of key material")
	root.PersistentFlags().String("data", "./discret.db", "database file path")
	root.PersistentFlags().String("env", "", "config environment overlay name, e.g. \"prod\"")

	root.AddCommand(mutateCmd, queryCmd, deleteCmd, inviteCmd, acceptInviteCmd, peerCmd, roomCmd, debugCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
