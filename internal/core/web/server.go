package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/rss"
	"github.com/seckatie/linkkeeper/internal/core/storage"
)

const (
	sessionName    = "linkkeeper_session"
	sessionUserKey = "user_id"

	shutdownTimeout = 10 * time.Second
)

// Store is the subset of the database the HTTP handlers read and write.
type Store interface {
	ListSubscriptionsByOwner(ctx context.Context, ownerID int64) ([]db.Subscription, error)
	ListLinks(ctx context.Context, ownerID, collectionID int64, limit int) ([]db.Link, error)
	GetLink(ctx context.Context, id int64) (db.Link, error)
	ClearArtifacts(ctx context.Context, id int64) error
}

// Refresher ingests a set of subscriptions and reports on each of them.
type Refresher interface {
	IngestAll(ctx context.Context, subs []db.Subscription) []rss.Settled
}

type Server struct {
	db        Store
	refresher Refresher
	artifacts storage.Store
	sessions  *sessions.CookieStore
}

// NewServer builds the HTTP API. sessionSecret signs the session cookie and
// must match the one used by whatever issues sessions.
func NewServer(database Store, refresher Refresher, artifacts storage.Store, sessionSecret []byte) *Server {
	store := sessions.NewCookieStore(sessionSecret)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Server{
		db:        database,
		refresher: refresher,
		artifacts: artifacts,
		sessions:  store,
	}
}

// Handler returns the routed API wrapped in request logging and panic recovery.
func (ws *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	ws.registerRoutes(mux)

	return chi.Chain(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
	).Handler(mux)
}

func (ws *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/rss/refresh", ws.handleRefresh)
	mux.HandleFunc("/subscriptions", ws.handleSubscriptions)
	mux.HandleFunc("/links", ws.handleLinks)
	mux.HandleFunc("/links/{id}/artifacts/{kind}", ws.handleArtifact)
	mux.HandleFunc("/links/{id}/rearchive", ws.handleRearchive)
}

// StartServer serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func StartServer(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting web server at %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down web server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
