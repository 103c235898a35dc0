package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/babblebase/filecount/internal/worker"
	"github.com/babblebase/filecount/pkg/kafka"
	"github.com/babblebase/filecount/pkg/metrics"
)

func NewWorkerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Analyze documents submitted through Kafka",
		Long: `Consume analysis requests from Kafka, analyze each document and publish
the outcome to the results topic. Reports are persisted like in serve.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			if timeout == 0 {
				timeout = a.cfg.Server.RequestTimeout
			}
			return a.work(cmd.Context(), timeout)
		},
	}

	cmd.Flags().Duration("timeout", 0, "Upper bound for one analysis, defaults to server.requestTimeout")
	return cmd
}

func (a *app) work(ctx context.Context, timeout time.Duration) error {
	cfg := a.cfg
	slog.Info("starting filecount worker",
		"topic", cfg.Kafka.Topics.AnalysisRequests,
		"group", cfg.Kafka.ConsumerGroup,
	)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdown := m.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}()
	}

	engine, err := a.engine(m)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg.Postgres, nil)
	if err != nil {
		return err
	}
	defer closeStore()

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalysisResults)
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("closing producer failed", "error", err)
		}
	}()

	w := worker.New(engine, store, producer, m, timeout)
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalysisRequests, w.HandleMessage)
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	slog.Info("filecount worker stopped")
	return nil
}
