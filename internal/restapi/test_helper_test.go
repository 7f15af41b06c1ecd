package restapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"transitstore.org/internal/app"
	"transitstore.org/internal/appconf"
)

func testConfig() appconf.Config {
	return appconf.Config{Env: appconf.Test, LogFormat: "json", SuggestionLimit: 7}
}

func createTestApiWithConfig(t *testing.T, cfg appconf.Config) *RestAPI {
	t.Helper()
	a, err := app.New(cfg, nil, nil)
	require.NoError(t, err)
	api := NewRestAPI(a)
	t.Cleanup(func() {
		api.Shutdown()
		_ = a.Close()
	})
	return api
}

func createTestApi(t *testing.T) *RestAPI {
	t.Helper()
	return createTestApiWithConfig(t, testConfig())
}

func serve(t *testing.T, api *RestAPI) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.SetRoutes(mux)
	server := httptest.NewServer(api.Handler(mux))
	t.Cleanup(server.Close)
	return server
}

// seed runs SQL against the store of authority.
func seed(t *testing.T, api *RestAPI, authority, stmts string) {
	t.Helper()
	p, err := api.Resolver.Provider(authority)
	require.NoError(t, err)
	db, err := p.Store().Get(context.Background())
	require.NoError(t, err)
	_, err = db.ExecContext(context.Background(), stmts)
	require.NoError(t, err)
}

type testResponse struct {
	Code    int
	Header  http.Header
	Model   ResponseModel
	RawData json.RawMessage
}

func do(t *testing.T, server *httptest.Server, method, path, body string, headers ...string) testResponse {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	out := testResponse{Code: resp.StatusCode, Header: resp.Header}
	var envelope struct {
		ResponseModel
		Data json.RawMessage `json:"data"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &envelope) == nil {
		out.Model = envelope.ResponseModel
		out.RawData = envelope.Data
	}
	return out
}

func decodeResultSet(t *testing.T, r testResponse) ResultSetModel {
	t.Helper()
	var rs ResultSetModel
	require.NoError(t, json.Unmarshal(r.RawData, &rs))
	return rs
}

func column(rs ResultSetModel, name string) []any {
	out := make([]any, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = row[name]
	}
	return out
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}

func readAll(r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	return string(b), err
}
