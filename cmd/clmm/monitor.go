package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clmmcore/pkg/monitor"
	"clmmcore/pkg/pool/whirlpool"
	"clmmcore/pkg/sol"
	"clmmcore/pkg/subscription"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type PriceEvent struct {
	Pool  string `json:"pool"`
	Price string `json:"price"`
	Slot  uint64 `json:"slot"`
}

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream the vault price of a Whirlpool whenever both vaults agree on a slot",
		Args:  cobra.NoArgs,
		RunE:  runMonitor,
	}

	cmd.Flags().String("pool", "", "whirlpool address (required)")
	cmd.Flags().String("ws", "", "Solana pubsub endpoint (derived from the first RPC endpoint if not set)")
	cmd.Flags().String("metrics-addr", ":2112", "address serving /metrics, empty to disable")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	poolArg, _ := cmd.Flags().GetString("pool")
	poolID, err := solana.PublicKeyFromBase58(poolArg)
	if err != nil {
		return fmt.Errorf("invalid pool address %q: %w", poolArg, err)
	}
	if cfg.WSEndpoint == "" {
		return errors.New("no websocket endpoint configured. Use --ws or --rpc")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	solClient, err := newSolClient(ctx, cfg)
	if err != nil {
		return err
	}
	pool, err := whirlpool.FetchPool(ctx, solClient, poolID)
	if err != nil {
		return err
	}
	state, err := pool.FetchState(ctx, solClient)
	if err != nil {
		return err
	}

	session, err := subscription.NewSession(ctx, cfg.WSEndpoint, subscription.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("failed to close subscription session", zap.Error(err))
		}
	}()

	reg := prometheus.NewRegistry()
	metrics, err := monitor.NewMetrics(reg, poolID.String())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	syn := monitor.NewSynchronizer(
		session.AccountSource(pool.TokenVaultA, sol.TokenAccountAmount),
		session.AccountSource(pool.TokenVaultB, sol.TokenAccountAmount),
		monitor.VaultPrice(state.DecimalsA, state.DecimalsB),
		func(ev monitor.Event) {
			if err := writeJSON(out, PriceEvent{Pool: poolID.String(), Price: ev.Value.String(), Slot: ev.Slot}); err != nil {
				logger.Warn("failed to write event", zap.Error(err))
			}
		},
		monitor.WithLogger(logger),
		monitor.WithMetrics(metrics),
	)

	session.RegisterHandler(poolID, func(id solana.PublicKey, snap subscription.PoolSnapshot) {
		price, err := snap.State.Price()
		if err != nil {
			return
		}
		logger.Info("pool updated",
			zap.Stringer("pool", id),
			zap.Uint64("slot", snap.Slot),
			zap.Int32("tick", snap.State.TickCurrentIndex),
			zap.String("price", price.String()),
		)
	})
	if _, err := session.WatchPool(poolID, whirlpool.StateDecoder(state.DecimalsA, state.DecimalsB)); err != nil {
		return err
	}

	if err := syn.Start(); err != nil {
		return err
	}
	defer func() {
		if err := syn.Stop(); err != nil {
			logger.Warn("failed to stop synchronizer", zap.Error(err))
		}
	}()

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler(reg), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("monitor start",
		zap.Stringer("pool", poolID),
		zap.Stringer("vaultA", pool.TokenVaultA),
		zap.Stringer("vaultB", pool.TokenVaultB),
		zap.String("ws", cfg.WSEndpoint),
		zap.String("metrics", cfg.MetricsAddr),
	)
	<-ctx.Done()
	logger.Info("monitor stop", zap.Any("stats", session.Stats()))
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}
