package handler

import (
	"encoding/json"
	"net/http"
)

type activeCounter interface {
	Active() int
}

// Health reports that the server is up and how many passes are running.
func Health(runs activeCounter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"active_runs": runs.Active(),
		})
	}
}
