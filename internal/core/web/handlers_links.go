package web

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/seckatie/linkkeeper/internal/core/db"
	"github.com/seckatie/linkkeeper/internal/core/storage"
)

const maxListedLinks = 500

type linkView struct {
	ID           int64    `json:"id"`
	URL          string   `json:"url"`
	Name         string   `json:"name"`
	CollectionID int64    `json:"collectionId"`
	CreatedAt    string   `json:"createdAt"`
	Artifacts    []string `json:"artifacts"`
	Pending      []string `json:"pending"`
}

func newLinkView(l db.Link) linkView {
	v := linkView{
		ID:           l.ID,
		URL:          l.URL,
		Name:         l.Name,
		CollectionID: l.CollectionID,
		CreatedAt:    l.CreatedAt,
		Artifacts:    []string{},
		Pending:      []string{},
	}
	for _, k := range db.ArtifactKinds {
		if l.Artifacts.Get(k) != "" {
			v.Artifacts = append(v.Artifacts, k.String())
		} else {
			v.Pending = append(v.Pending, k.String())
		}
	}
	return v
}

// handleLinks lists the caller's links, optionally within one collection.
func (ws *Server) handleLinks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	owner, ok := ws.requireUser(w, r)
	if !ok {
		return
	}

	var collection int64
	if raw := r.URL.Query().Get("collection"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid collection ID", nil)
			return
		}
		collection = id
	}

	links, err := ws.db.ListLinks(r.Context(), owner, collection, maxListedLinks)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error listing links", err)
		return
	}

	views := make([]linkView, len(links))
	for i, l := range links {
		views[i] = newLinkView(l)
	}
	writeJSON(w, http.StatusOK, views)
}

// handleArtifact serves one stored artifact of a link.
func (ws *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	owner, ok := ws.requireUser(w, r)
	if !ok {
		return
	}

	kind, ok := db.ParseArtifactKind(r.PathValue("kind"))
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown artifact kind", nil)
		return
	}
	l, ok := ws.ownedLink(w, r, owner)
	if !ok {
		return
	}

	key := l.Artifacts.Get(kind)
	if key == "" {
		writeError(w, http.StatusNotFound, "Artifact not available", nil)
		return
	}
	body, err := ws.artifacts.Get(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Artifact not available", nil)
		return
	}
	if err != nil {
		log.Printf("Failed to read artifact %s for link %d: %v", key, l.ID, err)
		writeError(w, http.StatusInternalServerError, "Error reading artifact", err)
		return
	}

	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	if _, err := w.Write(body); err != nil {
		log.Printf("Failed to write artifact %s: %v", key, err)
	}
}

// handleRearchive empties a link's artifact slots so the archive loop
// captures it again.
func (ws *Server) handleRearchive(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	owner, ok := ws.requireUser(w, r)
	if !ok {
		return
	}
	l, ok := ws.ownedLink(w, r, owner)
	if !ok {
		return
	}

	if err := ws.db.ClearArtifacts(r.Context(), l.ID); err != nil {
		writeError(w, http.StatusInternalServerError, "Error clearing artifacts", err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"response": "Link queued for archiving"})
}

// ownedLink loads the {id} link, answering 404 for links of other owners.
func (ws *Server) ownedLink(w http.ResponseWriter, r *http.Request, owner int64) (db.Link, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid link ID", nil)
		return db.Link{}, false
	}

	l, err := ws.db.GetLink(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) || (err == nil && l.OwnerID != owner) {
		writeError(w, http.StatusNotFound, "Link not found", nil)
		return db.Link{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error loading link", err)
		return db.Link{}, false
	}
	return l, true
}
