package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/thalesfsp/bo"
)

var (
	configOut       string
	configObjective string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Write the default configuration",
	Long: `Writes the default run configuration as YAML, with the search box of the
chosen built-in objective, ready to be edited and passed to "run --config".`,
	RunE: writeConfig,
}

func init() {
	configCmd.Flags().StringVar(&configOut, "out", "bo.yaml", "Output file")
	configCmd.Flags().StringVar(&configObjective, "objective", "abs", "Objective whose box is written")

	rootCmd.AddCommand(configCmd)
}

func writeConfig(cmd *cobra.Command, args []string) error {
	demo, err := lookupObjective(configObjective)
	if err != nil {
		return err
	}

	cfg := bo.DefaultConfig()
	cfg.Lower = demo.lower
	cfg.Upper = demo.upper

	if err := bo.SaveConfig(configOut, cfg); err != nil {
		return err
	}

	fmt.Printf("Wrote %s\n", configOut)

	return nil
}
