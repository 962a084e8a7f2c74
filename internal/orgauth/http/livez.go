package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/orgauth/pkg/authsdk"
	"github.com/aussiebroadwan/orgauth/pkg/httpx"
)

// LivezHandler reports that the process is up. It always answers 200.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		}
		httpx.WriteJSON(w, http.StatusOK, response)
	}
}
