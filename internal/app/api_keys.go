package app

import (
	"crypto/subtle"
	"net/http"
)

// WritesRequireKey reports whether write requests must carry an API key.
func (app *Application) WritesRequireKey() bool {
	return len(app.Config.APIKeys) > 0
}

func (app *Application) RequestHasInvalidAPIKey(r *http.Request) bool {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.URL.Query().Get("key")
	}
	return app.IsInvalidAPIKey(key)
}

func (app *Application) IsInvalidAPIKey(key string) bool {
	if key == "" {
		return true
	}

	for _, validKey := range app.Config.APIKeys {
		// Use constant-time comparison to prevent timing attacks
		if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
			return false
		}
	}

	return true
}
