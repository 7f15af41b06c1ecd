package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"transitstore.org/internal/families/userdata"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/provider"
	"transitstore.org/internal/resource"
)

// Cache tiers in seconds.
const (
	staticCacheSeconds    = 300
	referenceCacheSeconds = 30
)

// resourceURI rebuilds the identifier from the escaped request path so that
// escaped slashes inside a segment survive.
func resourceURI(r *http.Request, prefix string) (resource.URI, error) {
	return resource.Parse(strings.TrimPrefix(r.URL.EscapedPath(), prefix))
}

func cacheSeconds(u resource.URI, tag resource.Tag) int {
	switch {
	case tag == provider.TagMetaVersion || tag == provider.TagMetaLabel:
		return staticCacheSeconds
	case tag == provider.TagMetaDeployed || tag == provider.TagMetaSetupRequired:
		return 0
	case u.Authority == userdata.Authority:
		return 0
	}
	return referenceCacheSeconds
}

// buildQuery reads projection and sort from the query string. Sort names
// one output column, prefixed with "-" for descending order.
func buildQuery(r *http.Request, e *planner.Entry) (planner.Query, error) {
	var q planner.Query
	if p := r.URL.Query().Get("projection"); p != "" {
		for _, c := range strings.Split(p, ",") {
			if c = strings.TrimSpace(c); c != "" {
				q.Projection = append(q.Projection, c)
			}
		}
	}

	sort := r.URL.Query().Get("sort")
	if sort == "" {
		return q, nil
	}
	name, dir := sort, "ASC"
	if strings.HasPrefix(sort, "-") {
		name, dir = sort[1:], "DESC"
	}
	for _, c := range e.Columns {
		if c.Name == name {
			expr := c.Expr
			if expr == "" {
				expr = c.Name
			}
			q.SortOrder = expr + " " + dir
			return q, nil
		}
	}
	return q, fmt.Errorf("%w: cannot sort by %q", planner.ErrInvalidColumn, name)
}

func (api *RestAPI) queryHandler(w http.ResponseWriter, r *http.Request) {
	u, err := resourceURI(r, "/resource/")
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	p, err := api.Resolver.Provider(u.Authority)
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	m, e, err := p.Table().Resolve(u)
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	q, err := buildQuery(r, e)
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}

	rs, err := p.Query(r.Context(), u, q)
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	api.sendResponse(withCacheControl(w, cacheSeconds(u, m.Tag)), r, http.StatusOK, newResultSetModel(rs, e.Type))
}

// decodeRows accepts one JSON object or an array of objects. Numbers keep
// their literal text so the column affinity decides their storage class.
func decodeRows(r *http.Request, w http.ResponseWriter) ([]mutation.Values, bool, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, false, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []mutation.Values{{}}, false, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if body[0] == '[' {
		var rows []mutation.Values
		if err := dec.Decode(&rows); err != nil {
			return nil, false, err
		}
		return rows, true, nil
	}
	var row mutation.Values
	if err := dec.Decode(&row); err != nil {
		return nil, false, err
	}
	return []mutation.Values{row}, false, nil
}

func (api *RestAPI) insertHandler(w http.ResponseWriter, r *http.Request) {
	u, err := resourceURI(r, "/resource/")
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	rows, bulk, err := decodeRows(r, w)
	if err != nil {
		api.sendError(w, r, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	ctx := r.Context()
	switch {
	case r.URL.Query().Get("replace") == "true":
		n, err := api.Resolver.Replace(ctx, u, rows)
		if err != nil {
			api.sendStoreError(w, r, err)
			return
		}
		api.sendResponse(w, r, http.StatusOK, map[string]int{"rows": n})
	case bulk:
		n, err := api.Resolver.BulkInsert(ctx, u, rows)
		if err != nil {
			api.sendStoreError(w, r, err)
			return
		}
		api.sendResponse(w, r, http.StatusCreated, map[string]int{"rows": n})
	default:
		item, err := api.Resolver.Insert(ctx, u, rows[0])
		if err != nil {
			api.sendStoreError(w, r, err)
			return
		}
		w.Header().Set("Location", "/resource/"+item.Authority+item.Path())
		api.sendResponse(w, r, http.StatusCreated, map[string]string{"uri": item.String()})
	}
}

func (api *RestAPI) updateHandler(w http.ResponseWriter, r *http.Request) {
	u, err := resourceURI(r, "/resource/")
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	rows, bulk, err := decodeRows(r, w)
	if err != nil || bulk {
		api.sendError(w, r, http.StatusBadRequest, "expected one JSON object")
		return
	}
	n, err := api.Resolver.Update(r.Context(), u, rows[0])
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	api.sendResponse(w, r, http.StatusOK, map[string]int64{"updated": n})
}

func (api *RestAPI) deleteHandler(w http.ResponseWriter, r *http.Request) {
	u, err := resourceURI(r, "/resource/")
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	n, err := api.Resolver.Delete(r.Context(), u)
	if err != nil {
		api.sendStoreError(w, r, err)
		return
	}
	api.sendResponse(w, r, http.StatusOK, map[string]int64{"deleted": n})
}

var errStreamingUnsupported = errors.New("streaming unsupported")
