// Package httpserver contains the ingress HTTP handlers and
// middleware: quotation enqueueing, DLQ operations, health and
// metrics, behind bearer auth.
package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

// APIResponse is the success envelope every ingress endpoint returns.
type APIResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ErrorResponse is the error envelope.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

func nowStamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: nowStamp(),
	})
}

func writeError(w http.ResponseWriter, status int, errMsg, detail string) {
	writeJSON(w, status, ErrorResponse{
		Success:   false,
		Error:     errMsg,
		Detail:    detail,
		Timestamp: nowStamp(),
	})
}

// writeDomainError maps domain sentinels to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Error interno"
	switch {
	case errors.Is(err, domain.ErrInvalidVendor):
		status = http.StatusBadRequest
		msg = "Aseguradora no soportada"
	case errors.Is(err, domain.ErrVendorDisabled):
		status = http.StatusForbidden
		msg = "Aseguradora deshabilitada"
	case errors.Is(err, domain.ErrSchemaInvalid):
		status = http.StatusUnprocessableEntity
		msg = "Error de validación"
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		msg = "No encontrado"
	case errors.Is(err, domain.ErrNotConnected):
		status = http.StatusServiceUnavailable
		msg = "Error de conexión con el broker MQTT"
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
		msg = "No autorizado"
	}
	writeError(w, status, msg, err.Error())
}
