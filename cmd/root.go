package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "pollwatch",
	Short: "Scheduled HTTP endpoint monitoring",
	Long: `pollwatch validates HTTP endpoint configurations, polls them on a
fixed interval for a bounded lifetime and serves the recorded history and
derived health views.`,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
}
