// Command ledgerctl is the operator CLI for the credit ledger: inspect
// accounts and their transactions, and release quarantined notifications.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/creditsettle/internal/config"
	"github.com/fastprodman/creditsettle/internal/infra/logging"
	"github.com/spf13/cobra"
)

var Version = "dev"

type ctlConfig struct {
	LogLevel slog.Level `env:"APP_LOG_LEVEL" envDefault:"WARN"`

	Postgres config.PostgresConfig
	Payments config.PaymentsConfig
	Kafka    config.KafkaConfig
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		//nolint:gocritic
		os.Exit(1)
	}
}

type rootOptions struct {
	envFiles []string
	json     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Inspect the credit ledger and release quarantined payments",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env"}, "dotenv files to load before the environment")
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "print JSON instead of a table")

	root.AddCommand(accountCmd(opts))
	root.AddCommand(transactionsCmd(opts))
	root.AddCommand(quarantineCmd(opts))

	return root
}

func setupLogging(level slog.Level) {
	logging.SetupJSON(level, "ledgerctl")
}
