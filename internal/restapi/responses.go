package restapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"transitstore.org/internal/logging"
	"transitstore.org/internal/mutation"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
)

// ResponseVersion is the envelope version written in every response.
const ResponseVersion = 1

// ResponseModel is the envelope of every JSON response.
type ResponseModel struct {
	Code        int    `json:"code"`
	CurrentTime int64  `json:"currentTime"`
	Text        string `json:"text"`
	Version     int    `json:"version"`
	Data        any    `json:"data,omitempty"`
}

// ResultSetModel is a read rendered for the wire.
type ResultSetModel struct {
	URI     string           `json:"uri"`
	Type    string           `json:"type"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func newResultSetModel(rs *planner.ResultSet, typ string) ResultSetModel {
	return ResultSetModel{
		URI:     rs.Origin.String(),
		Type:    typ,
		Columns: rs.Columns,
		Rows:    rs.Maps(),
	}
}

func setJSONResponseType(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
}

func (api *RestAPI) envelope(code int, text string, data any) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: api.Clock.Now().UnixMilli(),
		Text:        text,
		Version:     ResponseVersion,
		Data:        data,
	}
}

func (api *RestAPI) sendResponse(w http.ResponseWriter, r *http.Request, code int, data any) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(api.envelope(code, "OK", data)); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode response", err)
	}
}

func (api *RestAPI) sendError(w http.ResponseWriter, r *http.Request, code int, message string) {
	setJSONResponseType(w)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(api.envelope(code, message, nil)); err != nil {
		logging.LogError(logging.FromContext(r.Context()), "failed to encode error response", err)
	}
}

// sendStoreError maps an error from the resolver onto a status code.
func (api *RestAPI) sendStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resource.ErrUnknownResource), errors.Is(err, resource.ErrInvalidURI):
		api.sendError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, planner.ErrInvalidColumn):
		api.sendError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, mutation.ErrInsertFailed):
		api.sendError(w, r, http.StatusConflict, err.Error())
	default:
		api.serverErrorResponse(w, r, err)
	}
}

func (api *RestAPI) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	logging.LogError(logging.FromContext(r.Context()), "request failed", err,
		slog.String("method", r.Method),
		slog.String("uri", r.URL.RequestURI()))
	api.sendError(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}
