// Package webui serves the HTML debug pages of a non-production server.
package webui

import (
	"database/sql"
	"embed"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/davecgh/go-spew/spew"

	"transitstore.org/internal/app"
	"transitstore.org/internal/appconf"
	"transitstore.org/transitdb"
)

//go:embed debug_index.html
var templateFS embed.FS

var debugTemplate = template.Must(template.ParseFS(templateFS, "debug_index.html"))

type WebUI struct {
	*app.Application
}

type link struct {
	Href  string
	Label string
}

type debugData struct {
	Title string
	Links []link
	Pre   string
}

var dataTypes = []string{"schema", "counts", "resources", "meta"}

// SetWebUIRoutes registers the debug pages on mux.
func (webUI *WebUI) SetWebUIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /debug/schema", webUI.debugIndexHandler)
}

func (webUI *WebUI) links() []link {
	var out []link
	for _, p := range webUI.Resolver.Providers() {
		for _, dt := range dataTypes {
			q := url.Values{"family": {p.Authority()}, "dataType": {dt}}
			out = append(out, link{Href: "/debug/schema?" + q.Encode(), Label: p.Authority() + " " + dt})
		}
	}
	return out
}

func (webUI *WebUI) writeDebugData(w http.ResponseWriter, title string, data any) {
	w.Header().Set("Content-Type", "text/html")
	err := debugTemplate.Execute(w, debugData{
		Title: title,
		Links: webUI.links(),
		Pre:   spew.Sdump(data),
	})
	if err != nil {
		slog.Error("failed to execute debug template", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// debugIndexHandler dumps the schema, row counts, resource table or meta
// state of one family. Opening the store for schema or counts creates it
// when absent.
func (webUI *WebUI) debugIndexHandler(w http.ResponseWriter, r *http.Request) {
	if webUI.Config.Env == appconf.Production {
		http.NotFound(w, r)
		return
	}

	family := r.URL.Query().Get("family")
	dataType := r.URL.Query().Get("dataType")

	p, err := webUI.Resolver.Provider(family)
	if err != nil {
		webUI.writeDebugData(w, "Choose a family and data type", map[string]string{
			"error": "Please use one of the links above.",
		})
		return
	}

	ctx := r.Context()
	store := p.Store()
	var data any
	title := fmt.Sprintf("%s - %s", store.Label(), dataType)

	switch dataType {
	case "schema":
		data, err = withDB(r, store, func(db *sql.DB) (any, error) { return transitdb.Describe(ctx, db) })
	case "counts":
		data, err = withDB(r, store, func(db *sql.DB) (any, error) { return transitdb.TableCounts(ctx, db) })
	case "resources":
		data = p.Table().Entries()
	case "meta":
		setup, serr := store.SetupRequired(ctx)
		data = map[string]any{
			"version":       store.Version(),
			"label":         store.Label(),
			"deployed":      store.Deployed(),
			"setupRequired": setup,
			"setupError":    serr,
			"path":          store.Path(),
			"subscriptions": webUI.Notifier.Len(),
		}
	default:
		data = map[string]string{"error": "Please use one of the following: schema, counts, resources, meta."}
		title = "Choose a data type"
	}
	if err != nil {
		slog.Error("debug page failed", "family", family, "dataType", dataType, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	webUI.writeDebugData(w, title, data)
}

func withDB(r *http.Request, store *transitdb.Store, fn func(*sql.DB) (any, error)) (any, error) {
	db, err := store.Get(r.Context())
	if err != nil {
		return nil, err
	}
	return fn(db)
}
