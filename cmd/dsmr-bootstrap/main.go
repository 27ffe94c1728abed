package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	rootCmd    = &cobra.Command{
		Use:   "dsmr-bootstrap",
		Short: "DSMR-reader container bootstrap",
		Long: `dsmr-bootstrap initializes a DSMR-reader container: it validates the
environment, waits for the database, runs the application's post-config
commands, configures the reverse proxy and finally hands the process over
to the supervisor.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/dsmr/bootstrap.toml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
