// Package commands implements the smaugctl subcommands.
package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/benvon/smaug/internal/config"
	"github.com/benvon/smaug/internal/counter"
	"github.com/benvon/smaug/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	outputJSON = "json"
	outputYAML = "yaml"
)

// NewRootCmd builds the smaugctl command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "smaugctl",
		Short:         "Operator tool for the smaug quota counters",
		Long:          "Inspect and adjust smaug counters, config records and billing totals.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringP("output", "o", outputJSON, "Output format: json or yaml")
	root.PersistentFlags().String("redis-url", "", "Redis URL (default REDIS_URL)")
	root.PersistentFlags().String("database-url", "", "Postgres URL (default DATABASE_URL)")

	root.AddCommand(
		NewKeyCmd(),
		NewEndsCmd(),
		NewGetCmd(),
		NewIncrCmd(),
		NewLookupCmd(),
		NewUsageCmd(),
	)
	return root
}

// render writes v in the format chosen by --output.
func render(cmd *cobra.Command, v any) error {
	format, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	switch strings.ToLower(format) {
	case outputJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q, want json or yaml", format)
	}
}

// readConfig vets the descriptor given as the first argument, or read from
// stdin when the argument is missing or "-".
func readConfig(cmd *cobra.Command, args []string) (*models.CounterConfig, error) {
	var data []byte
	if len(args) > 0 && args[0] != "-" {
		data = []byte(args[0])
	} else {
		var err error
		data, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read config from stdin: %w", err)
		}
	}

	cfg, err := counter.VetJSON(data)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// connectionURL returns the flag value or falls back to the environment.
func connectionURL(cmd *cobra.Command, flag string) (string, error) {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v, nil
	}

	cfg, err := config.Load()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}
	switch flag {
	case "redis-url":
		return cfg.RedisURL, nil
	case "database-url":
		if cfg.DatabaseURL == "" {
			return "", fmt.Errorf("--database-url or DATABASE_URL is required")
		}
		return cfg.DatabaseURL, nil
	}
	return "", fmt.Errorf("unknown connection flag %q", flag)
}
