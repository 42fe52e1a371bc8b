package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"notifier/internal/broker"
	"notifier/internal/config"
	"notifier/internal/constants"
	"notifier/internal/logger"
	"notifier/pkg/logging"
	"notifier/pkg/metrics"
	"notifier/pkg/models"
)

var (
	configFile  string
	exchange    string
	messageFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "notification-publisher",
		Short: "Publish a notification event to the broker",
		Long:  "Reads a JSON message from a file or stdin, validates it, and publishes it to the configured exchange",
		RunE:  publishCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")
	rootCmd.PersistentFlags().StringVar(&exchange, "exchange", "", "Target exchange name (required)")
	rootCmd.PersistentFlags().StringVar(&messageFile, "file", "-", "Path to the message JSON, or - for stdin")

	rootCmd.AddCommand(publishCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish one message",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
				if configFile == "" {
					earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
					return fmt.Errorf("config file is required")
				}
			}
			if exchange == "" {
				earlyLog.Error("Exchange is required. Use --exchange flag")
				return fmt.Errorf("exchange is required")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
				sugaredLogger.SetServiceName(constants.ServiceNamePublisher)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			body, err := readMessage(messageFile)
			if err != nil {
				log.ErrorwCtx(ctx, "Failed to read message", "error", err)
				return err
			}

			msg, err := models.Decode(body)
			if err != nil {
				log.ErrorwCtx(ctx, "Message is not valid JSON", "error", err)
				return err
			}

			metrics.RegisterBrokerMetrics()

			manager := broker.NewConnectionManager(cfg.Broker.Connection, log)
			defer manager.Close()

			producer := broker.NewProducer(cfg.Broker, manager, log)

			publishCtx, publishCancel := context.WithTimeout(ctx, 30*time.Second)
			defer publishCancel()

			if err := producer.Publish(publishCtx, exchange, msg); err != nil {
				log.ErrorwCtx(ctx, "Publish failed", "exchange", exchange, "error", err)
				return err
			}

			log.InfowCtx(ctx, "Message published", "exchange", exchange)
			return nil
		},
	}
}

func readMessage(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
