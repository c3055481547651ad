/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/spf13/cobra"
)

// refreshCmd is the manual refresh for one owner, throttled by a local cooldown.
var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh one owner's RSS subscriptions now",
	Long: `Ingest every subscription of one owner right away.

Manual refreshes are throttled by a cooldown (MANUAL_RSS_REFRESH_MINUTES,
default 20 minutes) recorded in a local state file. Use --force to skip it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRefresh(cmd)
	},
}

type refreshReport struct {
	Response string `json:"response"`
	rss.Summary
}

func runRefresh(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	owner, err := cmd.Flags().GetInt64("owner")
	if err != nil {
		return fmt.Errorf("failed to read --owner: %w", err)
	}
	if owner <= 0 {
		return errors.New("--owner must be a positive user id")
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return fmt.Errorf("failed to read --force: %w", err)
	}
	statePath, err := cmd.Flags().GetString("state")
	if err != nil {
		return fmt.Errorf("failed to read --state: %w", err)
	}
	if statePath == "" {
		statePath = defaultRefreshStatePath(owner)
	}

	cooldown := rss.NewCooldown(statePath, cfg.ManualRefreshCooldown)
	if !force {
		remaining, err := cooldown.Remaining()
		if err != nil {
			return err
		}
		if remaining > 0 {
			return fmt.Errorf("RSS feeds were refreshed recently, try again in %s (or use --force)", remaining.Round(time.Second))
		}
	}

	database, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	ctx := cmd.Context()
	subs, err := database.ListSubscriptionsByOwner(ctx, owner)
	if err != nil {
		return fmt.Errorf("error refreshing RSS feeds: %w", err)
	}

	var settled []rss.Settled
	if len(subs) > 0 {
		engine := newEngine(cfg, database, rss.NewHTTPClient(cfg.IgnoreUnauthorizedCA))
		settled = engine.IngestAll(ctx, subs)
	}
	summary := rss.Summarize(settled)

	if err := cooldown.Record(); err != nil {
		log.Printf("Warning: %v", err)
	}
	return printJSON(cmd.OutOrStdout(), refreshReport{Response: "RSS feeds refreshed", Summary: summary})
}

func defaultRefreshStatePath(owner int64) string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "linkkeeper", fmt.Sprintf("last-refresh-%d", owner))
}

func init() {
	rootCmd.AddCommand(refreshCmd)

	refreshCmd.Flags().Int64("owner", 0, "User id whose subscriptions are refreshed")
	refreshCmd.Flags().Bool("force", false, "Ignore the refresh cooldown")
	refreshCmd.Flags().String("state", "", "Path of the cooldown state file (default: user cache dir)")
}
