package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jcrioszam/red-ciudadana-sub001/server"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "reportes",
		Short:         "Flujo guiado de reportes ciudadanos",
		Long:          "Hosts the guided citizen-report submission flow: an HTTP bridge for browser shells and a terminal wizard for quick reports.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newWizardCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP flow bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := server.LoadDotEnvFile(".env"); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: could not load .env:", err)
			}

			cfg, err := server.LoadConfig()
			if err != nil {
				return err
			}

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return server.New(cfg, logger).Run(ctx)
		},
	}
}
