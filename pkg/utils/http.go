package utils

import (
	"net/http"

	"github.com/goccy/go-json"
)

// JSONError writes a JSON error response with the given status code and
// message. It ensures the Content-Type is set to application/json.
func JSONError(w http.ResponseWriter, status int, message string) {
	_ = JSONWrite(w, status, map[string]string{"error": message})
}

// JSONWrite writes the provided value as JSON with the given status code.
func JSONWrite(w http.ResponseWriter, status int, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// Health is the body of the health endpoints.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Runtime string `json:"runtime,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// MarshalHealth encodes h for runtimes that do not use http.ResponseWriter.
func MarshalHealth(h Health) []byte {
	b, _ := json.Marshal(h)
	return b
}
