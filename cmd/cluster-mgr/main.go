package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NeonSludge/cluster-mgr/internal/build"
	"github.com/NeonSludge/cluster-mgr/internal/config"
	"github.com/NeonSludge/cluster-mgr/internal/logger"
	"github.com/NeonSludge/cluster-mgr/pkg/inventory"
)

var (
	cfgFile string
	verbose bool

	cfg *config.Config
	log *zap.SugaredLogger
	inv *inventory.Inventory
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cluster-mgr",
	Short: "Kubernetes cluster management CLI for Tailscale networks",
	Long: `cluster-mgr manages the Ansible inventory of a homelab Kubernetes cluster:
the nodes that belong to the cluster, their roles, and the configuration
variables applied globally or per role group.`,
	Version:           build.Version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("cluster-mgr version %s\nBuilt: %s\n", build.Version, build.Time))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cluster-mgr.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().String("log-file", "", "path to log file")
	rootCmd.PersistentFlags().StringP("inventory", "i", "ansible/inventory/hosts.yml", "path to Ansible inventory file")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(addNodeCmd)
	rootCmd.AddCommand(removeNodeCmd)
	rootCmd.AddCommand(updateNodeCmd)
	rootCmd.AddCommand(listNodesCmd)
	rootCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(exportCmd)
}

// setup loads the configuration and initializes the logger and the inventory.
func setup(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return errors.Wrap(err, "configuration loading failure")
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}

	log, err = logger.New(level, cfg.Log.File)
	if err != nil {
		return errors.Wrap(err, "logger initialization failure")
	}
	log.Debug("logging initialized")

	cfg.Inventory.Logger = log

	inv, err = inventory.New(&cfg.Inventory)
	if err != nil {
		return errors.Wrap(err, "inventory initialization failure")
	}

	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "version:", build.Version)
		fmt.Fprintln(cmd.OutOrStdout(), "build time:", build.Time)
	},
}
