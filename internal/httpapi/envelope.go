package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"agentmemory/internal/apierr"
)

// envelopeError is one entry of the uniform response envelope's errors[]
// array, each with a type and message.
type envelopeError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// envelope is the uniform JSON response shape used by every handler:
// success, data, errors[], metadata.
type envelope struct {
	Success  bool            `json:"success"`
	Data     any             `json:"data,omitempty"`
	Errors   []envelopeError `json:"errors,omitempty"`
	Metadata metadata        `json:"metadata"`
}

type metadata struct {
	Service   string    `json:"service"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Degraded  bool      `json:"degraded,omitempty"`
}

func baseMetadata() metadata {
	return metadata{Service: "agentmemory", Version: Version, Timestamp: time.Now().UTC()}
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondDataDegraded(w, status, data, false)
}

func respondDataDegraded(w http.ResponseWriter, status int, data any, degraded bool) {
	md := baseMetadata()
	md.Degraded = degraded
	writeEnvelope(w, status, envelope{Success: true, Data: data, Metadata: md})
}

// respondError maps the error's apierr.Kind (when present) to an HTTP
// status and a single-entry errors[] array.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := apierr.KindOf(err)
	switch kind {
	case apierr.KindValidation:
		status = http.StatusBadRequest
	case apierr.KindNotFound:
		status = http.StatusNotFound
	case apierr.KindDependencyUnavailable:
		status = http.StatusServiceUnavailable
	case apierr.KindDependencyDegraded:
		status = http.StatusOK
	case apierr.KindInternal:
		status = http.StatusInternalServerError
	}
	writeEnvelope(w, status, envelope{
		Success:  false,
		Errors:   []envelopeError{{Type: string(kind), Message: err.Error()}},
		Metadata: baseMetadata(),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
