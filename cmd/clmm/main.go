package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"clmmcore/pkg/config"
	"clmmcore/pkg/logging"
	"clmmcore/pkg/sol"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

var errNoEndpoints = errors.New("no RPC endpoints configured. Set RPC_ENDPOINTS in .env or use --rpc")

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		outputError(root.ErrOrStderr(), err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clmm",
		Short:         "Concentrated liquidity pricing, deposit and swap quotes for Orca Whirlpools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading config")
	root.PersistentFlags().String("rpc", "", "comma-separated Solana RPC endpoints (reads RPC_ENDPOINTS if not set)")
	root.PersistentFlags().Int("ratelimit", 20, "RPC requests per second per endpoint")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(newPriceCmd(), newDepositCmd(), newQuoteCmd(), newMonitorCmd())
	return root
}

// loadConfig reads .env, the config file, environment and flags of cmd.
func loadConfig(cmd *cobra.Command) (config.Config, *zap.Logger, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := config.LoadEnv(envFile); err != nil {
		return config.Config{}, nil, fmt.Errorf("load env: %w", err)
	}

	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, err
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func newSolClient(ctx context.Context, cfg config.Config) (*sol.Client, error) {
	if len(cfg.RPCEndpoints) == 0 {
		return nil, errNoEndpoints
	}
	pool, err := sol.NewRPCPool(ctx, cfg.RPCEndpoints, cfg.RateLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to create RPC pool: %w", err)
	}
	return pool.GetClient(), nil
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func outputError(w io.Writer, err error) {
	_ = writeJSON(w, ErrorResponse{Error: err.Error()})
}
