package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/vibast-solutions/ms-go-locks/app/lock"
)

var holdFor time.Duration

var holdCmd = &cobra.Command{
	Use:   "hold KEY",
	Short: "Acquire a lock and keep it renewed",
	Long: "Acquire KEY once, print its fencing token and keep the lease renewed for --for " +
		"(or until interrupted when --for is 0), then release it. Exits non-zero when the key " +
		"is contended, the lease is lost or the store cannot be reached.",
	Args: cobra.ExactArgs(1),
	RunE: runHold,
}

// init registers the hold command.
func init() {
	holdCmd.Flags().DurationVar(&holdFor, "for", 0, "how long to hold the lock; 0 holds until interrupted")
	rootCmd.AddCommand(holdCmd)
}

// runHold holds one lock from the command line.
func runHold(cmd *cobra.Command, args []string) error {
	key := args[0]
	cfg, logger := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	cmd.SilenceUsage = true
	err = app.locker.Run(ctx, key, func(ctx context.Context, token lock.Token) error {
		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", uint64(token))
		return waitHold(ctx, holdFor)
	})

	switch {
	case err == nil:
		logger.WithField("lock_key", key).Info("lock held and released")
		return nil
	case errors.Is(err, lock.ErrAcquisitionContended):
		return fmt.Errorf("%s: %w", key, err)
	default:
		return err
	}
}

// waitHold blocks for d, or until ctx ends when d is zero. An interrupt is not
// an error; a lost lease surfaces through the context cause.
func waitHold(ctx context.Context, d time.Duration) error {
	var expired <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-expired:
		return nil
	case <-ctx.Done():
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			return cause
		}
		return nil
	}
}
