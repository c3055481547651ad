package web

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
)

// requireMethod checks if the request method matches the expected method.
// Returns true if the method matches, false otherwise (and sends 405 response).
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"response": "Method Not Allowed"})
		return false
	}
	return true
}

// requireUser returns the session's user id, or sends 401 when there is none.
func (ws *Server) requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	session, err := ws.sessions.Get(r, sessionName)
	if err != nil {
		// A cookie signed with another secret decodes to an error and an empty session.
		log.Printf("Ignoring invalid session cookie: %v", err)
	}
	if id, ok := userID(session.Values[sessionUserKey]); ok {
		return id, true
	}
	writeJSON(w, http.StatusUnauthorized, map[string]string{"response": "Unauthorized"})
	return 0, false
}

func userID(v any) (int64, bool) {
	switch id := v.(type) {
	case int64:
		return id, id > 0
	case int:
		return int64(id), id > 0
	case string:
		n, err := strconv.ParseInt(id, 10, 64)
		return n, err == nil && n > 0
	}
	return 0, false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, response string, err error) {
	body := map[string]string{"response": response}
	if err != nil {
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}
