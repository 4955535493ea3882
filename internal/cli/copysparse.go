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

// NewCopySparseCmd builds the copysparse root command: copy SRC to a
// newly created DST, punching holes over every zero-filled cluster
// instead of writing it out.
func NewCopySparseCmd() *cobra.Command {
	var (
		common           commonFlags
		flagProgressSecs uint
	)

	cmd := &cobra.Command{
		Use:           "copysparse SRC DST",
		Short:         "Copy a file, recreating its zero-filled clusters as holes",
		Long:          "copysparse reads SRC cluster by cluster and writes DST, punching a hole wherever SRC holds an all-zero cluster instead of writing the zero bytes out.",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(common)
			srcPath, dstPath := args[0], args[1]

			maxPending, _, progressInterval, err := resolveTunables(common.maxPending, 0, time.Duration(flagProgressSecs)*time.Second, common.configDir)
			if err != nil {
				return fmt.Errorf("copysparse: %w", err)
			}

			src, srcGeo, err := osfs.OpenExclusive(srcPath, os.O_RDONLY, 0)
			if err != nil {
				return fmt.Errorf("copysparse: opening source: %w", err)
			}
			defer src.Close()

			dst, _, err := osfs.OpenExclusive(dstPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
			if err != nil {
				return fmt.Errorf("copysparse: opening destination: %w", err)
			}
			defer dst.Close()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			prog := progress.NewState(srcGeo.Size)
			repDone := make(chan struct{})
			if !common.quiet {
				repCtx, repCancel := context.WithCancel(ctx)
				reporter := progress.NewReporter(prog, progressInterval, log, isTTY(os.Stderr), srcPath)
				go func() {
					reporter.Run(repCtx)
					close(repDone)
				}()
				defer func() { repCancel(); <-repDone }()
			}

			ccfg := pipeline.CopyConfig{ClusterSize: srcGeo.ClusterSize, MaxPending: maxPending}
			if _, err := pipeline.Copy(ctx, src, dst, ccfg, prog); err != nil {
				return fmt.Errorf("copysparse: %w", err)
			}

			if err := dst.RestoreTimestamps(srcGeo); err != nil {
				log.Warnf("copysparse: failed to preserve timestamps on %s: %v", dstPath, err)
			}

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
