package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sawpanic/marketsim/internal/engerr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr renders err as engerr's JSON envelope with the mapped HTTP
// status, so every handler's error path looks identical regardless of
// which internal package produced the error.
func writeErr(w http.ResponseWriter, err error) {
	env := engerr.ToEnvelope(err)
	writeJSON(w, engerr.HTTPStatus(engerr.KindOf(err)), env)
}

func queryIntDefault(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
