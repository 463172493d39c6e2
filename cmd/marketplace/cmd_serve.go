package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// marketplace serve: start the HTTP server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if a.mqClient != nil {
		// Order events are only logged here; other services may bind their own queues.
		err := a.mqClient.ConsumeOrderEvents(func(msg amqp.Delivery) error {
			a.logger.Info("order event received",
				zap.String("routing_key", msg.RoutingKey),
				zap.ByteString("body", msg.Body),
			)
			return nil
		})
		if err != nil {
			a.logger.Warn("order event consumer not started", zap.Error(err))
		}
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting server", zap.String("addr", a.cfg.AppPort), zap.String("env", a.cfg.AppEnv))
		errCh <- a.app.Listen(a.cfg.AppPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down server")
	if err := a.app.ShutdownWithContext(context.Background()); err != nil {
		a.logger.Error("error during fiber shutdown", zap.Error(err))
	}
	a.logger.Info("server gracefully stopped", zap.Int("pending_confirmations", a.scheduler.Pending()))
	return nil
}
