package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparsetools/sparsectl/internal/osfs"
	"github.com/sparsetools/sparsectl/internal/pipeline"
	"github.com/sparsetools/sparsectl/internal/progress"
)

// NewPipeSparseCmd builds the pipesparse root command: stream stdin
// into a newly created PATH, punching holes over zero-filled clusters
// as they arrive. Total length is unknown until stdin reaches EOF, so
// the destination is sized at the very end.
func NewPipeSparseCmd() *cobra.Command {
	var (
		common           commonFlags
		flagProgressSecs uint
	)

	cmd := &cobra.Command{
		Use:           "pipesparse PATH",
		Short:         "Write stdin to PATH, deallocating zero-filled clusters as they stream in",
		Long:          "pipesparse reads stdin cluster by cluster and writes PATH, punching a hole wherever the input holds an all-zero cluster instead of writing the zero bytes out. PATH's final size is set once stdin reaches EOF.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(common)
			path := args[0]

			maxPending, _, progressInterval, err := resolveTunables(common.maxPending, 0, time.Duration(flagProgressSecs)*time.Second, common.configDir)
			if err != nil {
				return fmt.Errorf("pipesparse: %w", err)
			}

			dst, geo, err := osfs.OpenExclusive(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("pipesparse: %w", err)
			}
			defer dst.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			prog := progress.NewState(0) // unknown length until EOF
			repDone := make(chan struct{})
			if !common.quiet {
				repCtx, repCancel := context.WithCancel(ctx)
				reporter := progress.NewReporter(prog, progressInterval, log, isTTY(os.Stderr), path)
				go func() {
					reporter.Run(repCtx)
					close(repDone)
				}()
				defer func() { repCancel(); <-repDone }()
			}

			ccfg := pipeline.CopyConfig{ClusterSize: geo.ClusterSize, MaxPending: maxPending}
			n, err := pipeline.Copy(ctx, os.Stdin, dst, ccfg, prog)
			if err != nil {
				return fmt.Errorf("pipesparse: %w", err)
			}

			log.Infof("pipesparse: wrote %d bytes to %s", n, path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&common.maxPending, "max-pending", 0, "Maximum in-flight IO operations (default: config/built-in)")
	flags.UintVar(&flagProgressSecs, "progress-interval", 0, "Progress reporting interval in seconds (default: config/built-in)")
	flags.BoolVarP(&common.verbose, "verbose", "v", false, "Log at debug level")
	flags.BoolVarP(&common.quiet, "quiet", "q", false, "Suppress progress output")
	flags.StringVar(&common.configDir, "config-dir", "", "Override config directory (default: ~/.sparsectl)")

	return cmd
}
