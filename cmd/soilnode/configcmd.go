package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"soilnode/internal/config"
)

var configPrintSchema bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the node configuration",
	Long:  "config loads --config, validates it against the embedded schema and prints the effective settings. --schema prints the schema instead.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cmd.OutOrStdout(), configPath, configPrintSchema)
	},
}

func init() {
	configCmd.Flags().BoolVar(&configPrintSchema, "schema", false, "Print the embedded CUE schema")
}

func runConfig(w io.Writer, path string, printSchema bool) error {
	if printSchema {
		_, err := io.WriteString(w, config.Schema())
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode effective config: %w", err)
	}
	_, err = w.Write(b)
	return err
}
