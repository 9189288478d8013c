package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "dswarmctl",
	Short:   "dswarmctl - submit task manifests and query a dswarm manager",
	Version: Version,
}

func init() {
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
}

var httpClient = &http.Client{Timeout: 60 * time.Second}

func managerAddr(cmd *cobra.Command) string {
	addr, _ := cmd.Flags().GetString("manager")
	return addr
}
