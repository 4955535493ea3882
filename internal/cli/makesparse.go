package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sparsetools/sparsectl/internal/bitmap"
	"github.com/sparsetools/sparsectl/internal/osfs"
	"github.com/sparsetools/sparsectl/internal/pipeline"
	"github.com/sparsetools/sparsectl/internal/progress"
)

// NewMakeSparseCmd builds the makesparse root command: scan PATH in
// place, mark it sparse, and punch every qualifying zero run.
func NewMakeSparseCmd() *cobra.Command {
	var (
		common           commonFlags
		restoreTimes     bool
		printBitmap      bool
		flagMinRun       uint64
		flagProgressSecs uint
	)

	cmd := &cobra.Command{
		Use:   "makesparse PATH",
		Short: "Scan a file and deallocate its zero-filled clusters",
		Long: "makesparse scans an existing file cluster by cluster, marks it sparse, " +
			"and punches a hole over every run of all-zero clusters long enough to qualify.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger(common)
			path := args[0]

			maxPending, minRun, progressInterval, err := resolveTunables(common.maxPending, flagMinRun, time.Duration(flagProgressSecs)*time.Second, common.configDir)
			if err != nil {
				return fmt.Errorf("makesparse: %w", err)
			}

			file, geo, err := osfs.OpenExclusive(path, os.O_RDWR, 0)
			if err != nil {
				return fmt.Errorf("makesparse: %w", err)
			}
			defer file.Close()

			bmp, err := bitmap.Allocate(geo.ClusterSize, geo.Size)
			if err != nil {
				return fmt.Errorf("makesparse: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			prog := progress.NewState(geo.Size)
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

			cfg := pipeline.AnalyzeConfig{
				ClusterSize:    geo.ClusterSize,
				FileSize:       geo.Size,
				MinRunClusters: minRun,
				MaxPending:     maxPending,
			}
			if err := pipeline.Analyze(ctx, file, bmp, cfg, prog); err != nil {
				return fmt.Errorf("makesparse: %w", err)
			}

			if restoreTimes {
				if err := file.RestoreTimestamps(geo); err != nil {
					log.Warnf("makesparse: failed to restore timestamps on %s: %v", path, err)
				}
			}

			if printBitmap {
				bmp.Print(os.Stdout)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&restoreTimes, "preserve-times", "p", false, "Restore access/modification timestamps after processing")
	flags.BoolVarP(&printBitmap, "print-map", "m", false, "Print the cluster bitmap after processing")
	flags.IntVar(&common.maxPending, "max-pending", 0, "Maximum in-flight IO operations (default: config/built-in)")
	flags.Uint64Var(&flagMinRun, "min-run-clusters", 0, "Minimum consecutive zero clusters to punch as one hole")
	flags.UintVar(&flagProgressSecs, "progress-interval", 0, "Progress reporting interval in seconds (default: config/built-in)")
	flags.BoolVarP(&common.verbose, "verbose", "v", false, "Log at debug level")
	flags.BoolVarP(&common.quiet, "quiet", "q", false, "Suppress progress output")
	flags.StringVar(&common.configDir, "config-dir", "", "Override config directory (default: ~/.sparsectl)")

	cmd.AddCommand(NewConfigCmd())

	return cmd
}
