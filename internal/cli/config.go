package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sparsetools/sparsectl/internal/config"
)

// NewConfigCmd builds the "config" subcommand tree (get/set/path),
// mirroring the teacher's own config command group but scoped to this
// project's four tunables instead of dhg's version/plugin settings.
func NewConfigCmd() *cobra.Command {
	var configDir string

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage sparsectl configuration",
		Long:  "Show, get, and set values in the sparsectl config file (~/.sparsectl/config.toml).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(configDir)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config file: %s\n", config.ConfigPath())
			fmt.Fprintf(cmd.OutOrStdout(), "max_pending = %d\n", cfg.MaxPending)
			fmt.Fprintf(cmd.OutOrStdout(), "progress_interval_seconds = %d\n", cfg.ProgressIntervalSeconds)
			fmt.Fprintf(cmd.OutOrStdout(), "min_run_clusters = %d\n", cfg.MinRunClusters)
			fmt.Fprintf(cmd.OutOrStdout(), "default_cluster_size = %d\n", cfg.DefaultClusterSize)
			return nil
		},
	}

	configGetCmd := &cobra.Command{
		Use:   "get <KEY>",
		Short: "Get a config value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(configDir)
			val, err := config.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), val)
			return nil
		},
	}

	configSetCmd := &cobra.Command{
		Use:   "set <KEY> <VALUE>",
		Short: "Set a config value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(configDir)
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], args[1])
			return nil
		},
	}

	configPathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigDir(configDir)
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
			return nil
		},
	}

	configCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Override config directory (default: ~/.sparsectl)")
	configCmd.AddCommand(configGetCmd, configSetCmd, configPathCmd)
	return configCmd
}
