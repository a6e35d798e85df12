package commands

import (
	"time"

	"github.com/benvon/smaug/internal/counter"
	"github.com/benvon/smaug/internal/models"
	"github.com/spf13/cobra"
)

type keyResult struct {
	ConfigKey string                `json:"config_key" yaml:"config_key"`
	Canonical string                `json:"canonical" yaml:"canonical"`
	Config    *models.CounterConfig `json:"config" yaml:"config"`
}

// NewKeyCmd creates the key command
func NewKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key [CONFIG_JSON|-]",
		Short: "Print the counter key of a config",
		Long:  "Vet a counter config and print its canonical form and derived key.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd, args)
			if err != nil {
				return err
			}
			return render(cmd, keyResult{
				ConfigKey: counter.DeriveKey(cfg),
				Canonical: string(counter.CanonicalJSON(cfg)),
				Config:    cfg,
			})
		},
	}
}

type endsResult struct {
	At   time.Time          `json:"at" yaml:"at"`
	Ends counter.Boundaries `json:"ends" yaml:"ends"`
}

// NewEndsCmd creates the ends command
func NewEndsCmd() *cobra.Command {
	var at string
	var utc bool

	cmd := &cobra.Command{
		Use:   "ends",
		Short: "Print the period boundaries of an instant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := time.Now()
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return err
				}
				t = parsed
			}
			if utc {
				t = t.UTC()
			}
			return render(cmd, endsResult{At: t, Ends: counter.PeriodEnds(t)})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "Instant in RFC3339 (default now)")
	cmd.Flags().BoolVar(&utc, "utc", false, "Compute boundaries in UTC")
	return cmd
}
