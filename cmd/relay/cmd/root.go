// Package cmd is the relay's cobra command tree, grounded on the
// teacher's internal/client/cmd (subcommand-builds-Config,
// calls-.Start() shape) and its own root.go's Execute()/log.Fatal
// pattern.
package cmd

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:  "relay",
	Long: "relay is a rendezvous and TCP relay server for peer-to-peer file transfer",
	Run: func(cmd *cobra.Command, args []string) {
		log.Println("relay is a rendezvous and TCP relay server for peer-to-peer file transfer")
	},
}

// Execute runs the relay's root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
