package mqtt

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

func TestEnqueue_PublishesFreshEnvelope(t *testing.T) {
	pub := &capturePublisher{}
	e := NewEnqueuer(pub, NewTopics("bots"), 1, 5, slog.Default())

	jobID, err := e.Enqueue(context.Background(), domain.VendorHDI, map[string]any{"in_strPlaca": "ABC123"})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	pubs := pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/queue/hdi", pubs[0].topic)
	assert.Equal(t, byte(1), pubs[0].qos)
	assert.False(t, pubs[0].retain)

	out := decodePublished(t, pubs[0].payload)
	assert.Equal(t, jobID, out.JobID)
	assert.Equal(t, 0, out.RetryCount)
	// The configured budget rides the envelope, not the built-in default.
	assert.Equal(t, 5, out.MaxRetries)
	assert.Equal(t, "ABC123", out.Payload["in_strPlaca"])
	assert.Empty(t, out.ErrorHistory)
}

func TestEnqueue_MaxRetriesFallsBackToDefault(t *testing.T) {
	pub := &capturePublisher{}
	e := NewEnqueuer(pub, NewTopics("bots"), 1, 0, slog.Default())

	_, err := e.Enqueue(context.Background(), domain.VendorSura, nil)
	require.NoError(t, err)

	out := decodePublished(t, pub.all()[0].payload)
	assert.Equal(t, domain.DefaultMaxRetries, out.MaxRetries)
}

func TestEnqueue_PublishErrorSurfaces(t *testing.T) {
	pub := &capturePublisher{errs: []error{errors.New("broker gone")}}
	e := NewEnqueuer(pub, NewTopics("bots"), 1, 3, slog.Default())

	_, err := e.Enqueue(context.Background(), domain.VendorHDI, nil)
	require.Error(t, err)
}
