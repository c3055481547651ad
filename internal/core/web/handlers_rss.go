package web

import (
	"log"
	"net/http"

	"github.com/seckatie/linkkeeper/internal/core/rss"
)

type refreshResponse struct {
	Response string `json:"response"`
	rss.Summary
}

// handleRefresh ingests the caller's subscriptions right away.
func (ws *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	owner, ok := ws.requireUser(w, r)
	if !ok {
		return
	}

	subs, err := ws.db.ListSubscriptionsByOwner(r.Context(), owner)
	if err != nil {
		log.Printf("Manual RSS refresh for owner %d failed: %v", owner, err)
		writeError(w, http.StatusInternalServerError, "Error refreshing RSS feeds", err)
		return
	}

	var settled []rss.Settled
	if len(subs) > 0 {
		settled = ws.refresher.IngestAll(r.Context(), subs)
	}
	summary := rss.Summarize(settled)
	for _, d := range summary.Details {
		if d.Value != nil && d.Value.Status == rss.StatusError && d.Value.Kind != rss.KindConnectivity {
			log.Printf("Manual RSS refresh for owner %d: %s", owner, d.Value)
		}
	}

	log.Printf("Manual RSS refresh for owner %d: %d subscription(s), %d new item(s), %d unreachable",
		owner, len(subs), summary.NewItems, summary.Unreachable)
	writeJSON(w, http.StatusOK, refreshResponse{Response: "RSS feeds refreshed", Summary: summary})
}

type subscriptionView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	CollectionID int64  `json:"collectionId"`
	// LastBuild is RFC3339, or "never".
	LastBuild string `json:"lastBuild"`
}

// handleSubscriptions lists the caller's subscriptions.
func (ws *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	owner, ok := ws.requireUser(w, r)
	if !ok {
		return
	}

	subs, err := ws.db.ListSubscriptionsByOwner(r.Context(), owner)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error listing subscriptions", err)
		return
	}

	views := make([]subscriptionView, len(subs))
	for i, s := range subs {
		views[i] = subscriptionView{
			ID:           s.ID,
			Name:         s.Name,
			URL:          s.URL,
			CollectionID: s.CollectionID,
			LastBuild:    s.LastBuild.String(),
		}
	}
	writeJSON(w, http.StatusOK, views)
}
