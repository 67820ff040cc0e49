package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/spboyer/dea/internal/cache"
	"github.com/spboyer/dea/internal/projectconfig"
)

var cacheDir string

func newCacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the evaluation result cache",
		Long: `Manage the evaluation result cache.

The cache stores compressed batch outcomes so that re-running the same table
with the same solver settings skips the LP solves. Entries are keyed by the
table contents, tolerance and rounding.`,
	}

	cmd.AddCommand(newCacheClearCommand())

	return cmd
}

func newCacheClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the evaluation result cache",
		Long: `Clear all cached evaluation results.

The directory defaults to cache.dir from .dea.yaml, or .dea-cache when no
project configuration is found.`,
		Args: cobra.NoArgs,
		RunE: cacheClearE,
	}

	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Cache directory to clear (default: cache.dir from .dea.yaml)")

	return cmd
}

func cacheClearE(cmd *cobra.Command, args []string) error {
	dir := cacheDir
	if dir == "" {
		cfg, err := projectconfig.Load(".")
		if err != nil {
			return err
		}
		dir = cfg.Resolve(cfg.Cache.Dir)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving cache directory: %w", err)
	}

	c := cache.New(absDir)
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cache cleared: %s\n", absDir) //nolint:errcheck
	return nil
}
