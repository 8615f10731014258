package render

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/omni/rollup-bridge-reconciler/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	buf, err := marshal(r, res)
	if err != nil {
		Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(buf); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Warn("failed to write response")
	}
}

func marshal(r *http.Request, res interface{}) ([]byte, error) {
	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		return json.MarshalIndent(res, "", "  ")
	}
	return json.Marshal(res)
}

// Error replies with 500 and logs the error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.LoggerFromContext(r.Context())
	logger.WithError(err).Error("request handling failed")
	JSON(w, r, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// BadRequest replies with 400 without logging at the error level.
func BadRequest(w http.ResponseWriter, r *http.Request, err error) {
	logging.LoggerFromContext(r.Context()).WithError(err).Debug("invalid request")
	JSON(w, r, http.StatusBadRequest, errorResponse{Error: err.Error()})
}
