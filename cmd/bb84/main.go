// Command bb84 runs BB84 key distribution simulations: single runs, batch
// parameter sweeps and analysis of sweep results.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qkdsim/bb84/bb84"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// cli holds state shared by all subcommands.
type cli struct {
	verbose bool
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:   "bb84",
		Short: "Simulate BB84 quantum key distribution",
		Long: `bb84 simulates the BB84 protocol between Alice and Bob over a noisy
quantum channel, optionally with an intercept-resend eavesdropper, and reports
whether a raw shared key could be established.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config := zap.NewProductionConfig()
			if c.verbose {
				config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := config.Build()
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = c.logger.Sync()
		},
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.AddCommand(newRunCmd(c), newBatchCmd(c), newAnalyzeCmd(c))
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

// exitCode maps a command error to the process status: 2 for rejected
// parameters, 1 for any other failure. A protocol abort is not an error.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, bb84.ErrInvalidParams):
		return 2
	default:
		return 1
	}
}
