// Package httputil holds the JSON helpers shared by the node API and the bus hub.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/skycoin/skycoin/src/util/logging"
)

// MaxBodySize caps request bodies read by ReadJSON.
const MaxBodySize = 4 << 10

var log = logging.MustGetLogger("httputil")

// ErrorResponse is the body written for error values.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteJSON writes v as JSON with the given code. Error values are written
// as an ErrorResponse. ?pretty=true indents the output.
func WriteJSON(w http.ResponseWriter, r *http.Request, code int, v interface{}) {
	if err, ok := v.(error); ok {
		v = ErrorResponse{Error: err.Error()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	enc := json.NewEncoder(w)
	if pretty, _ := BoolFromQuery(r, "pretty", false); pretty { //nolint:errcheck
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		log.WithError(err).Warnf("Failed to write %T response to %s", v, r.RemoteAddr)
	}
}

// ReadJSON decodes the request body into v. Unknown fields and bodies over
// MaxBodySize are rejected.
func ReadJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize+1))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	if dec.More() {
		return errors.New("invalid request body: trailing data")
	}
	return nil
}

// BoolFromQuery obtains a boolean from a query entry.
func BoolFromQuery(r *http.Request, key string, defaultVal bool) (bool, error) {
	switch q := r.URL.Query().Get(key); q {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	case "":
		return defaultVal, nil
	default:
		return false, fmt.Errorf("invalid '%s' query value of '%s'", key, q)
	}
}
