package restapi

import (
	"encoding/json"
	"net/http"

	"transitstore.org/internal/logging"
)

// HealthResponse represents the JSON response from the health endpoint.
type HealthResponse struct {
	Status   string                  `json:"status"`
	Families map[string]FamilyHealth `json:"families"`
}

// FamilyHealth is the state of one family's store.
type FamilyHealth struct {
	Deployed      bool   `json:"deployed"`
	SetupRequired bool   `json:"setupRequired"`
	Version       int    `json:"version"`
	Detail        string `json:"detail,omitempty"`
}

// healthHandler reports every store without creating missing files. A
// deployed store that cannot be reached makes the service unavailable; a
// store still waiting for its dataset does not.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	setJSONResponseType(w)
	ctx := r.Context()

	resp := HealthResponse{Status: "ok", Families: make(map[string]FamilyHealth)}
	status := http.StatusOK

	for _, p := range api.Resolver.Providers() {
		store := p.Store()
		h := FamilyHealth{Deployed: store.Deployed(), Version: store.Version()}

		if h.Deployed {
			db, err := store.Get(ctx)
			if err == nil {
				err = db.PingContext(ctx)
			}
			if err != nil {
				logging.LogError(api.Logger, "store ping failed", err)
				h.Detail = "database connection failed"
				resp.Status, status = "unavailable", http.StatusServiceUnavailable
			}
		}
		setup, err := store.SetupRequired(ctx)
		if err != nil && h.Detail == "" {
			h.Detail = "version probe failed"
		}
		h.SetupRequired = setup

		resp.Families[p.Authority()] = h
	}

	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
