/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/seckatie/linkkeeper/internal/config"
	"github.com/seckatie/linkkeeper/internal/core"
	"github.com/seckatie/linkkeeper/internal/core/capacity"
	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/seckatie/linkkeeper/internal/core/storage"
	"github.com/seckatie/linkkeeper/internal/core/web"
	"github.com/seckatie/linkkeeper/internal/core/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkkeeper",
	Short: "Keep RSS feeds flowing into your bookmarks and archive every link",
	Long: `linkkeeper ingests RSS/Atom subscriptions into bookmark collections and
archives every saved link as a screenshot, a PDF, a readable copy and a
self-contained HTML page.

Run without a subcommand to start the web API together with the RSS polling
loop and the archive loop. Settings are read from the environment (and a
.env file when present); see the subcommands for one-off operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("db", "d", config.DefaultDatabasePath, "Path to the SQLite database file (overrides DATABASE_PATH)")
	rootCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	rootCmd.Flags().String("host", "localhost", "Host to listen on")
	rootCmd.Flags().String("chrome-path", "", "Path to Chrome/Chromium executable (overrides CHROME_PATH)")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.SessionSecret == "" {
		return errors.New("SESSION_SECRET must be set to serve the web API")
	}
	host, err := cmd.Flags().GetString("host")
	if err != nil {
		return fmt.Errorf("failed to read --host: %w", err)
	}
	port, err := cmd.Flags().GetInt("port")
	if err != nil {
		return fmt.Errorf("failed to read --port: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := initDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(database)

	artifacts, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open artifact storage: %w", err)
	}

	client := rss.NewHTTPClient(cfg.IgnoreUnauthorizedCA)
	engine := newEngine(cfg, database, client)
	capturer := core.NewCapturer(database, artifacts, client, core.ArchiveOptions{
		ChromePath: cfg.ChromePath,
		Headless:   true,
		Timeout:    cfg.ArchiveTimeout,
	})

	rssPoller := worker.NewRSSPoller(database, engine, cfg.RSSPollingInterval)
	archivePoller := worker.NewArchivePoller(
		worker.NewSelector(database),
		worker.NewArchiveWorker(capturer),
		cfg.ArchiveTakeCount,
		cfg.ArchiveInterval,
	)
	registerEventListeners(database)

	server := web.NewServer(database, engine, artifacts, []byte(cfg.SessionSecret))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(rssPoller.Run(gctx)) })
	g.Go(func() error { return ignoreCancel(archivePoller.Run(gctx)) })
	g.Go(func() error { return web.StartServer(gctx, fmt.Sprintf("%s:%d", host, port), server.Handler()) })

	err = g.Wait()
	log.Println("linkkeeper stopped")
	return err
}

// registerEventListeners logs store events. New and cleared links are picked
// up by the archive loop on its next pass.
func registerEventListeners(database *db.DB) {
	database.RegisterEventListener(db.OnLinkCreatedEvent, func(event db.Event) error {
		ev := event.(db.LinkCreatedEvent)
		log.Printf("New link created: %d - %s, awaiting archive", ev.Link.ID, ev.Link.URL)
		return nil
	})

	database.RegisterEventListener(db.OnArtifactsClearedEvent, func(event db.Event) error {
		ev := event.(db.ArtifactsClearedEvent)
		log.Printf("Artifacts cleared for link %d, awaiting re-archive", ev.LinkID)
		return nil
	})

	database.RegisterEventListener(db.OnArtifactsSavedEvent, func(event db.Event) error {
		ev := event.(db.ArtifactsSavedEvent)
		log.Printf("Saved %v for link %d", ev.Kinds, ev.LinkID)
		return nil
	})

	database.RegisterEventListener(db.OnWatermarkAdvancedEvent, func(event db.Event) error {
		ev := event.(db.WatermarkAdvancedEvent)
		log.Printf("Subscription %d ingested up to %s", ev.SubscriptionID, ev.Watermark)
		return nil
	})
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Load()

	if cmd.Flags().Changed("db") {
		path, err := cmd.Flags().GetString("db")
		if err != nil {
			return cfg, fmt.Errorf("failed to read --db: %w", err)
		}
		cfg.DatabasePath = path
	}
	if f := cmd.Flags().Lookup("chrome-path"); f != nil && f.Changed {
		cfg.ChromePath = f.Value.String()
	}
	cfg.ChromePath = defaultChromePath(cfg.ChromePath)
	return cfg, nil
}

func defaultChromePath(path string) string {
	if path == "" && runtime.GOOS == "darwin" {
		// Best-effort default for macOS.
		return "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
	}
	return path
}

func initDB(cfg config.Config) (*db.DB, error) {
	database, err := db.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	if err := database.Migrate(); err != nil {
		closeDB(database)
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("Database migrated successfully")

	return database, nil
}

func closeDB(database *db.DB) {
	if err := database.Close(); err != nil {
		log.Printf("failed to close database: %v", err)
	}
}

func newEngine(cfg config.Config, database *db.DB, client *http.Client) *rss.Engine {
	return rss.NewEngine(
		database,
		capacity.NewGate(database, cfg.MaxLinksPerUser),
		rss.NewFetcher(client),
	)
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
