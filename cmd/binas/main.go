package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "binas",
		Short: "Bina rental with quorum-replicated credit",
		Long: `Binas rents and returns binas at stations. Every user's credit is
replicated on the stations themselves and read and written by majority
quorum, so the service keeps working while a minority of stations is down.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newClientCmds()...)
	return rootCmd
}
