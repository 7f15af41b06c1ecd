package restapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"transitstore.org/internal/logging"
)

type changeEvent struct {
	URI string `json:"uri"`
	At  string `json:"at"`
}

// watchHandler streams change events for a resource as server-sent events
// until the client goes away. descendants=true also reports changes below
// the identifier.
func (api *RestAPI) watchHandler(w http.ResponseWriter, r *http.Request) {
	u, err := resourceURI(r, "/watch/")
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	if _, err := api.Resolver.Type(u); err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.serverErrorResponse(w, r, errStreamingUnsupported)
		return
	}

	// Streams outlive the server's WriteTimeout.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		logging.LogWarning(logging.FromContext(r.Context()), "watch stream keeps the write deadline",
			slog.String("error", err.Error()))
	}

	sub := api.Resolver.Subscribe(u, r.URL.Query().Get("descendants") == "true")
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", noCache)
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, ": watching %s\n\n", u)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(changeEvent{URI: ev.URI.String(), At: ev.At.Format(time.RFC3339Nano)})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
