package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/config"
)

var version = "dev"

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "gepa",
		Short: "GEPA - reflective prompt optimizer",
		Long: `GEPA (Genetic-Pareto) optimizes the natural-language instructions of an
LLM program by evolving candidates against a validation set, guided by
per-instance Pareto fronts and an LLM-backed reflective mutation operator.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg = config.Load()
			return nil
		},
	}

	rootCmd.AddCommand(
		optimizeCmd(),
		inspectCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gepa version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("gepa", version)
		},
	}
}
