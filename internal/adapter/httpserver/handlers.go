package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brokerwiz/orchestrator/internal/adapter/queue/mqtt"
	"github.com/brokerwiz/orchestrator/internal/domain"
	"github.com/brokerwiz/orchestrator/internal/usecase"
)

const (
	serviceName    = "brokerwiz-api"
	serviceVersion = "1.0.0"
)

// Queue is the ingress write path into the broker.
type Queue interface {
	Enqueue(ctx context.Context, vendor domain.Vendor, payload map[string]any) (string, error)
}

// DLQ exposes the dead-letter index and the re-injection operation.
type DLQ interface {
	ListAll() []mqtt.DLQEntry
	ListByVendor(v domain.Vendor) []mqtt.DLQEntry
	Retry(ctx context.Context, jobID string) (domain.JobMessage, error)
}

// HealthChecker produces the cached broker health verdict.
type HealthChecker interface {
	Check(ctx context.Context) usecase.HealthReport
}

// MetricsSource produces the cached system metrics document.
type MetricsSource interface {
	Collect(ctx context.Context) usecase.SystemMetrics
}

// Server bundles the HTTP handlers with their dependencies.
type Server struct {
	queue    Queue
	dlq      DLQ
	health   HealthChecker
	metrics  MetricsSource
	insurers *InsurerRegistry
	validate *validator.Validate
	log      *slog.Logger
}

// NewServer builds the handler set.
func NewServer(queue Queue, dlq DLQ, health HealthChecker, metrics MetricsSource, insurers *InsurerRegistry, log *slog.Logger) *Server {
	return &Server{
		queue:    queue,
		dlq:      dlq,
		health:   health,
		metrics:  metrics,
		insurers: insurers,
		validate: validator.New(),
		log:      log,
	}
}

// JobResponse is the data section of a successful enqueue.
type JobResponse struct {
	JobID    string `json:"job_id"`
	Vendor   string `json:"vendor"`
	Status   string `json:"status"`
	Message  string `json:"message"`
	QueuedAt string `json:"queued_at"`
}

// QuoteHandler enqueues one quotation job for the vendor in the path.
// Both request shapes are accepted: the nested
// {solicitud_aseguradora_id, payload:{...}} form and the flat form
// where the body itself is the payload.
func (s *Server) QuoteHandler(w http.ResponseWriter, r *http.Request) {
	vendorRaw := chi.URLParam(r, "vendor")
	vendor, err := domain.ParseVendor(vendorRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Aseguradora '%s' no soportada", vendorRaw),
			"Las aseguradoras válidas son: "+vendorList())
		return
	}
	if !s.insurers.IsEnabled(vendor) {
		writeDomainError(w, fmt.Errorf("aseguradora %s: %w", vendor, domain.ErrVendorDisabled))
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo JSON inválido", err.Error())
		return
	}

	payload := extractPayload(body)
	if err := ValidatePayload(vendor, payload); err != nil {
		writeDomainError(w, err)
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), vendor, payload)
	if err != nil {
		LoggerFrom(r).Error("enqueue failed",
			slog.String("vendor", string(vendor)), slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, "Error al encolar tarea en MQTT", err.Error())
		return
	}

	writeSuccess(w, http.StatusAccepted, "Tarea encolada para "+vendor.Upper(), JobResponse{
		JobID:    jobID,
		Vendor:   string(vendor),
		Status:   "pending",
		Message:  "Tarea encolada exitosamente. Será procesada por un worker disponible.",
		QueuedAt: nowStamp(),
	})
}

// extractPayload normalizes the two accepted request shapes into the
// payload map that goes on the wire.
func extractPayload(body map[string]any) map[string]any {
	nested, ok := body["payload"].(map[string]any)
	if !ok {
		if body == nil {
			return map[string]any{}
		}
		return body
	}
	if sid, ok := body["solicitud_aseguradora_id"].(string); ok {
		if _, exists := nested["solicitud_aseguradora_id"]; !exists {
			nested["solicitud_aseguradora_id"] = sid
		}
	}
	return nested
}

func vendorList() string {
	vendors := domain.Vendors()
	names := make([]string, 0, len(vendors))
	for _, v := range vendors {
		names = append(names, string(v))
	}
	return strings.Join(names, ", ")
}

// BatchItem is one entry of the batch enqueue body.
type BatchItem struct {
	Aseguradora            string         `json:"aseguradora" validate:"required"`
	SolicitudAseguradoraID string         `json:"solicitud_aseguradora_id"`
	Payload                map[string]any `json:"payload"`
}

// BatchHandler enqueues jobs for several vendors in one call. Items
// that fail keep the rest of the batch going; the response reports
// both sides.
func (s *Server) BatchHandler(w http.ResponseWriter, r *http.Request) {
	var items []BatchItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeError(w, http.StatusBadRequest, "Cuerpo JSON inválido", err.Error())
		return
	}

	results := make([]JobResponse, 0, len(items))
	var failures []string
	for _, item := range items {
		if err := s.validate.Struct(item); err != nil {
			failures = append(failures, "item sin aseguradora")
			continue
		}
		vendor, err := domain.ParseVendor(item.Aseguradora)
		if err != nil {
			failures = append(failures, fmt.Sprintf("aseguradora '%s' no válida", item.Aseguradora))
			continue
		}
		if !s.insurers.IsEnabled(vendor) {
			failures = append(failures, fmt.Sprintf("aseguradora '%s' deshabilitada", vendor))
			continue
		}
		payload := item.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		if item.SolicitudAseguradoraID != "" {
			if _, exists := payload["solicitud_aseguradora_id"]; !exists {
				payload["solicitud_aseguradora_id"] = item.SolicitudAseguradoraID
			}
		}
		jobID, err := s.queue.Enqueue(r.Context(), vendor, payload)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", vendor, err))
			continue
		}
		results = append(results, JobResponse{
			JobID:    jobID,
			Vendor:   string(vendor),
			Status:   "pending",
			Message:  "Encolado",
			QueuedAt: nowStamp(),
		})
	}

	message := fmt.Sprintf("%d tareas encoladas", len(results))
	if len(failures) > 0 {
		message += fmt.Sprintf(", %d errores: %s", len(failures), strings.Join(failures, "; "))
	}
	writeJSON(w, http.StatusAccepted, APIResponse{
		Success:   len(results) > 0,
		Message:   message,
		Data:      results,
		Timestamp: nowStamp(),
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	Service       string `json:"service"`
	Version       string `json:"version"`
	MQTTConnected bool   `json:"mqtt_connected"`
	Timestamp     string `json:"timestamp"`
}

// HealthHandler reports the cached broker health. Always 200; the
// verdict lives in the body so load balancers and humans read the same
// document.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        string(report.Status),
		Service:       serviceName,
		Version:       serviceVersion,
		MQTTConnected: report.Broker.Connected,
		Timestamp:     nowStamp(),
	})
}

type dlqListResponse struct {
	Vendor   string          `json:"vendor,omitempty"`
	Count    int             `json:"count"`
	Messages []mqtt.DLQEntry `json:"messages"`
}

// DLQListHandler lists every dead-lettered job.
func (s *Server) DLQListHandler(w http.ResponseWriter, _ *http.Request) {
	entries := s.dlq.ListAll()
	if entries == nil {
		entries = []mqtt.DLQEntry{}
	}
	writeJSON(w, http.StatusOK, dlqListResponse{Count: len(entries), Messages: entries})
}

// DLQVendorHandler lists the dead-lettered jobs of one vendor.
func (s *Server) DLQVendorHandler(w http.ResponseWriter, r *http.Request) {
	vendorRaw := chi.URLParam(r, "vendor")
	vendor, err := domain.ParseVendor(vendorRaw)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Aseguradora '%s' no soportada", vendorRaw),
			"Las aseguradoras válidas son: "+vendorList())
		return
	}
	entries := s.dlq.ListByVendor(vendor)
	if entries == nil {
		entries = []mqtt.DLQEntry{}
	}
	writeJSON(w, http.StatusOK, dlqListResponse{Vendor: string(vendor), Count: len(entries), Messages: entries})
}

// DLQRetryHandler re-injects one dead-lettered job into its queue.
func (s *Server) DLQRetryHandler(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	msg, err := s.dlq.Retry(r.Context(), jobID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "requeued",
		"job_id":  msg.JobID,
		"message": "Tarea reenviada a la cola con estado de reintentos limpio",
	})
}

// MetricsHandler serves the aggregated system metrics document.
func (s *Server) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Collect(r.Context()))
}
