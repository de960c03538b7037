package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "records",
		Short:         "Patient medical records",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(registerCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(listUpdateCmd("conditions", "Replace your conditions"))
	rootCmd.AddCommand(listUpdateCmd("prescriptions", "Replace your prescriptions"))
	rootCmd.AddCommand(passwordCmd())
	rootCmd.AddCommand(adminCmd())

	return rootCmd
}
