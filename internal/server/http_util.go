package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"garak-board/internal/garak"
)

func writeJSON(w http.ResponseWriter, status int, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "json encode failed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": strings.TrimSpace(message),
	})
}

func decodeJSONBody(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func parsePage(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("page"))
	if raw == "" {
		return 1
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 1
	}
	return value
}

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

func parseLimit(r *http.Request) int {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return defaultPageLimit
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return defaultPageLimit
	}
	if value > maxPageLimit {
		return maxPageLimit
	}
	return value
}

func parseAttemptFilter(r *http.Request) (garak.Filter, bool) {
	return garak.ParseFilter(strings.TrimSpace(r.URL.Query().Get("filter")))
}
