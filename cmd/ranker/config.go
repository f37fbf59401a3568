package main

import (
	"github.com/rohankatakam/gitranker/internal/config"
	rankerrors "github.com/rohankatakam/gitranker/internal/errors"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gitranker configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printYAML(cfg.Masked())
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		result := cfg.Validate(config.ValidationContextAll)
		for _, w := range result.Warnings {
			warn("%s", w)
		}
		if result.HasErrors() {
			return rankerrors.ConfigError(result.Error())
		}
		success("Configuration is valid")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}
