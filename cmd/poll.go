/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/seckatie/linkkeeper/internal/core/worker"
	"github.com/spf13/cobra"
)

// pollCmd runs one scheduled-style RSS pass and exits.
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Ingest every subscription once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		database, err := initDB(cfg)
		if err != nil {
			return err
		}
		defer closeDB(database)

		engine := newEngine(cfg, database, rss.NewHTTPClient(cfg.IgnoreUnauthorizedCA))
		summary, err := worker.NewRSSPoller(database, engine, cfg.RSSPollingInterval).Poll(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list subscriptions: %w", err)
		}
		return printJSON(cmd.OutOrStdout(), summary)
	},
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(pollCmd)
}
