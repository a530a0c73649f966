package cli

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crclabs/backingd/internal/config"
	"github.com/crclabs/backingd/internal/di"
)

// serveCmd starts the daemon. It is also the default action when backingd
// is invoked without a subcommand.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backing daemon",
	Long: `Start the backing daemon: open the state and event stores, restore
the deployed instances, and serve the JSON-RPC API with the WebSocket event
stream on the configured listen address.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	}
}

func newLogger() *log.Logger {
	var out io.Writer = os.Stderr
	if quiet {
		out = io.Discard
	}
	flags := log.LstdFlags
	if debug || verbose {
		flags |= log.Lshortfile
	}
	return log.New(out, "[backingd] ", flags)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger()

	container := di.New()
	provider := di.NewProvider(container, cfg, logger)
	if err := provider.RegisterAll(); err != nil {
		return fmt.Errorf("register services: %w", err)
	}
	defer container.Close()

	svc, err := provider.RPCService()
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	if !quiet {
		fmt.Printf("backingd %s\n", rootCmd.Version)
		fmt.Printf("  data dir:   %s (%s)\n", cfg.Node.DataDir, cfg.Node.KVEngine)
		fmt.Printf("  JSON-RPC:   http://%s/\n", cfg.RPC.Listen)
		fmt.Printf("  WebSocket:  ws://%s/ws\n", cfg.RPC.Listen)
		if cfg.EventDB.Enabled {
			fmt.Printf("  event db:   %s\n", cfg.EventDB.Driver)
		}
		fmt.Printf("  factory:    %s\n", cfg.Protocol.FactoryAddress)
		fmt.Printf("  settlement: %s\n", cfg.Protocol.SettlementAddress)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Printf("listening on %s", cfg.RPC.Listen)
	return svc.Run(ctx)
}
