package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/benvon/smaug/internal/counter"
	"github.com/benvon/smaug/internal/logger"
	"github.com/benvon/smaug/internal/models"
	"github.com/benvon/smaug/internal/store"
	"github.com/benvon/smaug/internal/validation"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const commandTimeout = 10 * time.Second

type countsResult struct {
	ConfigKey string                  `json:"config_key" yaml:"config_key"`
	Counts    map[models.Period]int64 `json:"counts" yaml:"counts"`
}

type incrResult struct {
	ConfigKey   string `json:"config_key" yaml:"config_key"`
	N           int64  `json:"n" yaml:"n"`
	Incremented bool   `json:"incremented" yaml:"incremented"`
}

func openRedisStore(cmd *cobra.Command) (*store.RedisStore, error) {
	url, err := connectionURL(cmd, "redis-url")
	if err != nil {
		return nil, err
	}
	s, err := store.NewRedisStore(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return s, nil
}

func closeStore(s *store.RedisStore) {
	if err := s.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close redis: %v\n", err)
	}
}

// NewGetCmd creates the get command
func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [CONFIG_JSON|-]",
		Short: "Show the live counts of a config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd, args)
			if err != nil {
				return err
			}

			s, err := openRedisStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(s)

			limiter, err := counter.New(s)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			counts, err := limiter.GetCountsConfig(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to read counts: %w", err)
			}
			return render(cmd, countsResult{ConfigKey: counter.DeriveKey(cfg), Counts: counts})
		},
	}
}

// NewIncrCmd creates the incr command
func NewIncrCmd() *cobra.Command {
	var n int64
	var strict bool
	var recordTTL time.Duration

	cmd := &cobra.Command{
		Use:   "incr [CONFIG_JSON|-]",
		Short: "Check and increment the counters of a config",
		Long: "Apply one decision exactly as the service would. A negative --n is a\n" +
			"billing correction that only writes an audit line.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := readConfig(cmd, args)
			if err != nil {
				return err
			}

			s, err := openRedisStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(s)

			log, err := logger.NewDevelopmentLogger(false)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync(log) }()

			limiter, err := counter.New(s,
				counter.WithLogger(log),
				counter.WithAuditSink(counter.NewLogSink(log)),
				counter.WithRecordTTL(recordTTL),
				counter.WithStrictMode(strict),
			)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			ok, err := limiter.CheckAndIncrementConfig(ctx, cfg, n)
			if err != nil {
				return fmt.Errorf("failed to increment: %w", err)
			}
			log.Debug("incr_done", zap.Bool("incremented", ok))
			return render(cmd, incrResult{ConfigKey: counter.DeriveKey(cfg), N: n, Incremented: ok})
		},
	}

	cmd.Flags().Int64Var(&n, "n", 1, "Number of events")
	cmd.Flags().BoolVar(&strict, "strict", false, "Use the atomic compare-and-increment path")
	cmd.Flags().DurationVar(&recordTTL, "record-ttl", 60*24*time.Hour, "Config record TTL")
	return cmd
}

// NewLookupCmd creates the lookup command
func NewLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup KEY",
		Short: "Show the config record stored for a counter key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := validation.ValidateConfigKey(key); err != nil {
				return err
			}

			s, err := openRedisStore(cmd)
			if err != nil {
				return err
			}
			defer closeStore(s)

			ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
			defer cancel()

			fields, err := s.ConfigRecord(ctx, key)
			if err != nil {
				return fmt.Errorf("failed to read config record: %w", err)
			}
			if fields == nil {
				return fmt.Errorf("no config record for key %s", key)
			}
			return render(cmd, fields)
		},
	}
}
