package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "locks",
	Short: "Distributed lock service",
	Long:  "A lease-based distributed lock service with fencing tokens, backed by Redis or MySQL, exposed via HTTP and gRPC health.",
}

// Execute runs the root Cobra command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
