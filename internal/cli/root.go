// Package cli holds the casebeam commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"casebeam/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "casebeam",
	Short: "Legal research assistant with retrieval-augmented answers",
	Long: `casebeam serves the research web application and manages the
document collection it searches.

Example usage:
  casebeam serve                       # Start the HTTP server
  casebeam ingest "cases/**/*.txt"     # Load documents into the collection
  casebeam search "duty of care"       # Query the collection from the terminal`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "casebeam.yaml", "config file")
}

func GetConfig() *config.Config {
	return cfg
}
