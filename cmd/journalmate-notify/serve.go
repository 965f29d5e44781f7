package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const poolStatsInterval = 30 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatcher loop and serve /metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			a, err := newApp(ctx, opts, reg)
			if err != nil {
				return err
			}
			defer a.Close()

			addr := a.cfg.Metrics.Addr
			if metricsAddr != "" {
				addr = metricsAddr
			}
			srv := newMetricsServer(addr, reg)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					a.log.WithError(err).Error("metrics server stopped")
				}
			}()
			a.log.WithField("addr", addr).Info("serving metrics")

			go recordPoolStats(ctx, a)

			a.dispatcher.Start(ctx)
			a.log.WithField("interval_sec", a.cfg.Dispatcher.PollIntervalSec).Info("dispatcher started")

			<-ctx.Done()
			a.log.Info("shutting down")
			a.dispatcher.Stop()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutting down metrics server: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "metrics listen address (overrides config)")
	return cmd
}

func newMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func recordPoolStats(ctx context.Context, a *app) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()

	a.metrics.RecordDBPoolStats(a.store.Stats())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.RecordDBPoolStats(a.store.Stats())
		}
	}
}
