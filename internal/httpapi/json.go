package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/pulsefm/pulsefm/internal/log"
	"github.com/pulsefm/pulsefm/internal/xerrors"
)

func writeJSONBody(w http.ResponseWriter, body any) error {
	return json.NewEncoder(w).Encode(body)
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// writeError maps err to a status code and a {error, reason} body per the
// Kind classification of spec.md §7.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if xe, ok := xerrors.As(err); ok {
		status := xerrors.StatusCode(xe.Kind)
		if status >= 500 {
			log.FromContext(r.Context()).Error().Err(err).Str("reason", xe.Reason).Msg("request failed")
		}
		writeJSON(w, status, map[string]string{"error": string(xe.Kind), "reason": xe.Reason})
		return
	}
	log.FromContext(r.Context()).Error().Err(err).Msg("request failed with unclassified error")
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal"})
}
