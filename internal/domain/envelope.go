package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxRetries is the retry budget stamped on new envelopes.
const DefaultMaxRetries = 3

// ErrorDetail records one classified failure on an envelope.
type ErrorDetail struct {
	Timestamp  string    `json:"timestamp"`
	ErrorType  ErrorType `json:"error_type"`
	ErrorCode  string    `json:"error_code"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stack_trace,omitempty"`
}

// NewErrorDetail builds an ErrorDetail from a classified error.
// Stack traces stay off the wire unless explicitly requested.
func NewErrorDetail(err error, kind ErrorType, code string) ErrorDetail {
	return ErrorDetail{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		ErrorType: kind,
		ErrorCode: code,
		Message:   err.Error(),
	}
}

// JobMessage is the wire form of a job: the vendor payload plus retry
// metadata. Envelopes are value types; retries publish fresh copies
// rather than mutating an already-published message.
type JobMessage struct {
	JobID          string         `json:"job_id"`
	Payload        map[string]any `json:"payload"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	FirstAttemptAt string         `json:"first_attempt_at"`
	LastError      *ErrorDetail   `json:"last_error"`
	ErrorHistory   []ErrorDetail  `json:"error_history"`
}

// NewJobMessage builds a fresh envelope for ingress with a generated
// job id and zeroed retry state.
func NewJobMessage(payload map[string]any) JobMessage {
	if payload == nil {
		payload = map[string]any{}
	}
	return JobMessage{
		JobID:          uuid.NewString(),
		Payload:        payload,
		RetryCount:     0,
		MaxRetries:     DefaultMaxRetries,
		FirstAttemptAt: time.Now().UTC().Format(time.RFC3339),
		ErrorHistory:   []ErrorDetail{},
	}
}

// envelopeFields are the top-level keys that are NOT folded into the
// payload when decoding legacy messages. "timestamp" was emitted by the
// old publisher and is dropped on ingestion.
var envelopeFields = map[string]bool{
	"job_id": true, "payload": true, "retry_count": true, "max_retries": true,
	"first_attempt_at": true, "last_error": true, "error_history": true,
	"timestamp": true,
}

// UnmarshalJSON implements the backward-compatible ingestion contract:
// unknown top-level keys are folded into the payload (unless the
// payload already carries them) and missing retry metadata is
// defaulted. Only malformed JSON fails; extra fields never do.
func (m *JobMessage) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	out := JobMessage{
		RetryCount:   0,
		MaxRetries:   DefaultMaxRetries,
		Payload:      map[string]any{},
		ErrorHistory: []ErrorDetail{},
	}

	decodeField := func(key string, dst any) {
		if v, ok := raw[key]; ok && string(v) != "null" {
			// Individually malformed fields keep their defaults; the
			// envelope as a whole still ingests.
			_ = json.Unmarshal(v, dst)
		}
	}
	decodeField("job_id", &out.JobID)
	decodeField("payload", &out.Payload)
	decodeField("retry_count", &out.RetryCount)
	decodeField("max_retries", &out.MaxRetries)
	decodeField("first_attempt_at", &out.FirstAttemptAt)
	decodeField("last_error", &out.LastError)
	decodeField("error_history", &out.ErrorHistory)

	if out.Payload == nil {
		out.Payload = map[string]any{}
	}
	if out.ErrorHistory == nil {
		out.ErrorHistory = []ErrorDetail{}
	}
	if out.FirstAttemptAt == "" {
		out.FirstAttemptAt = time.Now().UTC().Format(time.RFC3339)
	}

	// Legacy format: flat fields at the root belong inside payload.
	for key, v := range raw {
		if envelopeFields[key] {
			continue
		}
		if _, exists := out.Payload[key]; exists {
			continue
		}
		var anyVal any
		if err := json.Unmarshal(v, &anyVal); err == nil {
			out.Payload[key] = anyVal
		}
	}

	*m = out
	return nil
}

// Encode serializes the envelope for publishing.
func (m JobMessage) Encode() ([]byte, error) {
	if m.ErrorHistory == nil {
		m.ErrorHistory = []ErrorDetail{}
	}
	if m.Payload == nil {
		m.Payload = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}
	return b, nil
}

// DecodeJobMessage parses an envelope off the wire.
func DecodeJobMessage(data []byte) (JobMessage, error) {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return JobMessage{}, err
	}
	return m, nil
}

// AddError appends to the error history and updates last_error.
// History is append-only within a retry chain.
func (m *JobMessage) AddError(detail ErrorDetail) {
	m.ErrorHistory = append(m.ErrorHistory, detail)
	m.LastError = &detail
}

// IncrementRetry bumps the retry counter before a requeue.
func (m *JobMessage) IncrementRetry() { m.RetryCount++ }

// MaxRetriesExceeded reports whether the retry budget is spent.
func (m *JobMessage) MaxRetriesExceeded() bool { return m.RetryCount >= m.MaxRetries }

// ResetForRetry produces the fresh envelope used when a job is manually
// re-injected from the DLQ: same job id and payload, cleared retry
// state and error history.
func (m JobMessage) ResetForRetry() JobMessage {
	return JobMessage{
		JobID:          m.JobID,
		Payload:        m.Payload,
		RetryCount:     0,
		MaxRetries:     m.MaxRetries,
		FirstAttemptAt: time.Now().UTC().Format(time.RFC3339),
		LastError:      nil,
		ErrorHistory:   []ErrorDetail{},
	}
}
