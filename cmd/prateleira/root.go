package main

import (
	"os"
	"strings"

	"github.com/lewtec/prateleira/annotation"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "prateleira",
	Short: "Keep shelf-pair annotations and review statistics in sync",
	Long: strings.TrimSpace(`
Walks sessions and review batches of before/after store-camera image pairs,
keeping the per-session annotation documents and the review statistics
database consistent with each other.
    `),
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "prateleira.yaml", "Config file")
	rootCmd.MarkPersistentFlagFilename("config")
}

func loadConfig(cmd *cobra.Command) (*annotation.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	return annotation.LoadConfig(path)
}
