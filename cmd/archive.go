/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/

// The archive command captures the missing artifacts of stored links.
//
// Features:
//   - Archive a single link by specifying its ID.
//   - Archive one batch of the oldest and newest links still missing artifacts.
//   - Customize the Chrome/Chromium executable path used for capture.
//   - Choose between headless or headful Chrome execution.
//   - Configure a timeout for each capture.
//   - Wait for a specified CSS selector before capturing, helpful for dynamic JS-rendered pages.
//
// Example usage:
//
//	linkkeeper archive --id=123 --timeout=30s --wait-selector="article" --chrome-path="/path/to/chrome" --headful
//	linkkeeper archive --take=10
package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/seckatie/linkkeeper/internal/config"
	"github.com/seckatie/linkkeeper/internal/core"
	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/seckatie/linkkeeper/internal/core/storage"
	"github.com/seckatie/linkkeeper/internal/core/worker"
	"github.com/spf13/cobra"
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Capture screenshots, PDFs, readable copies and HTML snapshots of links",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runArchive(cmd); err != nil {
			log.Fatalf("Archive failed: %v", err)
		}
	},
}

// runArchive is the main function for the archive command.
func runArchive(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	id, err := cmd.Flags().GetInt64("id")
	if err != nil {
		return fmt.Errorf("failed to read --id: %w", err)
	}
	take, timeout, err := archiveLimits(cmd, cfg)
	if err != nil {
		return err
	}
	waitSelector, err := cmd.Flags().GetString("wait-selector")
	if err != nil {
		return fmt.Errorf("failed to read --wait-selector: %w", err)
	}
	headful, err := cmd.Flags().GetBool("headful")
	if err != nil {
		return fmt.Errorf("failed to read --headful: %w", err)
	}

	database, err := initDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeDB(database)

	ctx := cmd.Context()
	artifacts, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open artifact storage: %w", err)
	}

	capturer := core.NewCapturer(database, artifacts, rss.NewHTTPClient(cfg.IgnoreUnauthorizedCA), core.ArchiveOptions{
		ChromePath:   cfg.ChromePath,
		Headless:     !headful,
		Timeout:      timeout,
		WaitSelector: waitSelector,
	})

	if id > 0 {
		l, err := database.GetLink(ctx, id)
		if err != nil {
			return err
		}
		if err := capturer.Archive(ctx, l); err != nil {
			return err
		}
		log.Printf("Archived link %d", id)
		return nil
	}

	poller := worker.NewArchivePoller(worker.NewSelector(database), worker.NewArchiveWorker(capturer), take, cfg.ArchiveInterval)
	res, err := poller.ProcessBatch(ctx)
	if err != nil {
		return err
	}
	if res.Attempted == 0 {
		log.Println("No links to archive.")
		return nil
	}
	if res.Failed > 0 {
		return fmt.Errorf("archiving finished with %d failure(s)", res.Failed)
	}

	log.Println("Archiving finished successfully.")
	return nil
}

// archiveLimits reads --take and --timeout, falling back to the configured
// ARCHIVE_TAKE_COUNT and ARCHIVE_TIMEOUT_SECONDS when they are zero.
func archiveLimits(cmd *cobra.Command, cfg config.Config) (int, time.Duration, error) {
	take, err := cmd.Flags().GetInt("take")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read --take: %w", err)
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read --timeout: %w", err)
	}
	if take <= 0 {
		take = cfg.ArchiveTakeCount
	}
	if timeout <= 0 {
		timeout = cfg.ArchiveTimeout
	}
	return take, timeout, nil
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	addArchiveFlags(archiveCmd)
}

func addArchiveFlags(c *cobra.Command) {
	c.Flags().Int64("id", 0, "Archive a specific link id")
	c.Flags().Int("take", 0, "Links taken from each end of the backlog (0 = ARCHIVE_TAKE_COUNT)")
	c.Flags().Duration("timeout", 0, "Per-link archive timeout (0 = ARCHIVE_TIMEOUT_SECONDS)")
	c.Flags().String("wait-selector", "", "Optional CSS selector to wait for (useful for JS-heavy pages)")
	c.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable")
	c.Flags().Bool("headful", false, "Run Chrome with a visible window (not headless)")
}
