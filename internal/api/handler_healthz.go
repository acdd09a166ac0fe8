package api

import (
	"net/http"

	"github.com/quotefeed/quotefeed/internal/buildinfo"
)

// HandleHealthz returns a handler for GET /healthz. Liveness only: 200
// whenever the process is serving.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": buildinfo.Version,
			"commit":  buildinfo.GitCommit,
		})
	}
}
