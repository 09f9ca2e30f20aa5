// Package main exports reviewed user messages as intent training data.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/capitalize-ai/support-router/internal/model"
	"github.com/capitalize-ai/support-router/internal/service"
	"github.com/capitalize-ai/support-router/internal/store"
	"github.com/capitalize-ai/support-router/pkg/logger"
)

var version = "dev"

func main() {
	var (
		databaseURL string
		out         string
		logLevel    string
	)

	rootCmd := &cobra.Command{
		Use:   "export-training",
		Short: "Export labeled user messages as classifier training data",
		Long: `Reads every stored conversation and writes the user messages that carry
an intent and are not awaiting review as a JSON array of {text, intent}.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if databaseURL == "" {
				return fmt.Errorf("--database-url or DATABASE_URL is required")
			}

			log, err := logger.New(logLevel)
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync()

			ctx := cmd.Context()
			st, err := store.NewPGStore(ctx, store.PGConfig{URL: databaseURL, MaxConns: 2})
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := run(ctx, st, log, out, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			log.Info("exported training data", zap.Int("samples", n), zap.String("out", out))
			return nil
		},
	}

	rootCmd.Flags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	rootCmd.Flags().StringVarP(&out, "out", "o", "data.json", "output file, - for stdout")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// run collects the samples from st and writes them to out, or to stdout when out is "-".
func run(ctx context.Context, st store.Store, log *logger.Logger, out string, stdout io.Writer) (int, error) {
	svc := service.New(service.Deps{Store: st, Logger: log})
	samples, err := svc.TrainingSamples(ctx)
	if err != nil {
		return 0, fmt.Errorf("collect samples: %w", err)
	}

	if out == "-" {
		return len(samples), writeSamples(stdout, samples)
	}

	f, err := os.Create(out)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", out, err)
	}
	if err := writeSamples(f, samples); err != nil {
		f.Close()
		return 0, err
	}
	return len(samples), f.Close()
}

func writeSamples(w io.Writer, samples []model.TrainingSample) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(samples); err != nil {
		return fmt.Errorf("write samples: %w", err)
	}
	return nil
}
