package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-locks/app/queue"
	"github.com/vibast-solutions/ms-go-locks/app/state"
)

var consumeCmd = &cobra.Command{
	Use:   "consume",
	Short: "Consume queued messages",
	Long:  "Consume queued messages from Redis streams.",
}

// init registers consume subcommands.
func init() {
	consumeCmd.AddCommand(consumeEventsCmd)
	rootCmd.AddCommand(consumeCmd)
}

var consumeEventsCmd = &cobra.Command{
	Use:   "events [consumer_name]",
	Short: "Start the lock event consumer",
	Long:  "Start a worker that reads lock lifecycle events from the Redis stream and logs them.",
	Args:  cobra.ExactArgs(1),
	Run:   runConsumeEvents,
}

// runConsumeEvents starts the lock event consumer worker.
func runConsumeEvents(_ *cobra.Command, args []string) {
	consumerName := args[0]
	cfg, logger := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := state.ConnectRedis(ctx, redisOptions(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer rdb.Close()

	consumer := queue.NewEventConsumer(rdb, queue.LogEvent(logger), consumerName, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Received shutdown signal, stopping consumer...")
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil {
		logger.WithError(err).Fatal("Consumer error")
	}

	logger.Info("Consumer stopped")
}
