package mqtt

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brokerwiz/orchestrator/internal/domain"
)

func newTestDLQManager(pub Publisher) *DLQManager {
	d := NewDLQManager("localhost:1883", NewTopics("bots"), 1, slog.Default())
	if pub != nil {
		d.republish = pub
	}
	return d
}

func deadLetter(t *testing.T, d *DLQManager, vendor domain.Vendor, payload map[string]any) domain.JobMessage {
	t.Helper()
	msg := domain.NewJobMessage(payload)
	msg.RetryCount = msg.MaxRetries
	msg.AddError(domain.NewErrorDetail(assertErr{}, domain.ErrorRetriable, "CAPTCHA_001"))
	data, err := msg.Encode()
	require.NoError(t, err)
	d.ingest("bots/dlq/"+string(vendor), data)
	return msg
}

type assertErr struct{}

func (assertErr) Error() string { return "captcha timeout" }

func TestDLQManager_IngestAndList(t *testing.T) {
	d := newTestDLQManager(nil)
	m1 := deadLetter(t, d, domain.VendorHDI, map[string]any{"placa": "AAA111"})
	m2 := deadLetter(t, d, domain.VendorHDI, map[string]any{"placa": "BBB222"})
	m3 := deadLetter(t, d, domain.VendorSura, map[string]any{"placa": "CCC333"})

	all := d.ListAll()
	require.Len(t, all, 3)

	hdi := d.ListByVendor(domain.VendorHDI)
	require.Len(t, hdi, 2)
	ids := []string{hdi[0].Message.JobID, hdi[1].Message.JobID}
	assert.Contains(t, ids, m1.JobID)
	assert.Contains(t, ids, m2.JobID)

	sura := d.ListByVendor(domain.VendorSura)
	require.Len(t, sura, 1)
	assert.Equal(t, m3.JobID, sura[0].Message.JobID)

	counts := d.Counts()
	assert.Equal(t, 2, counts[domain.VendorHDI])
	assert.Equal(t, 1, counts[domain.VendorSura])

	assert.Empty(t, d.ListByVendor(domain.VendorAXA))
}

func TestDLQManager_IngestDuplicateKeepsLatest(t *testing.T) {
	d := newTestDLQManager(nil)
	msg := domain.NewJobMessage(nil)
	msg.RetryCount = 3

	data, err := msg.Encode()
	require.NoError(t, err)
	d.ingest("bots/dlq/hdi", data)
	d.ingest("bots/dlq/hdi", data)

	assert.Len(t, d.ListAll(), 1)
	assert.Equal(t, 1, d.Counts()[domain.VendorHDI])
}

func TestDLQManager_IngestBadInput(t *testing.T) {
	d := newTestDLQManager(nil)
	d.ingest("bots/dlq/acme", []byte(`{"job_id":"x"}`))
	d.ingest("bots/dlq/hdi", []byte(`not json`))
	assert.Empty(t, d.ListAll())
}

func TestDLQManager_RetryResetsAndRemoves(t *testing.T) {
	pub := &capturePublisher{}
	d := newTestDLQManager(pub)
	original := deadLetter(t, d, domain.VendorHDI, map[string]any{"placa": "AAA111"})

	fresh, err := d.Retry(context.Background(), original.JobID)
	require.NoError(t, err)
	assert.Equal(t, original.JobID, fresh.JobID)
	assert.Equal(t, 0, fresh.RetryCount)
	assert.Empty(t, fresh.ErrorHistory)
	assert.Nil(t, fresh.LastError)
	assert.Equal(t, original.Payload, fresh.Payload)

	pubs := pub.all()
	require.Len(t, pubs, 1)
	assert.Equal(t, "bots/queue/hdi", pubs[0].topic)
	out := decodePublished(t, pubs[0].payload)
	assert.Equal(t, 0, out.RetryCount)
	assert.Empty(t, out.ErrorHistory)

	assert.Empty(t, d.ListAll())
	assert.Empty(t, d.ListByVendor(domain.VendorHDI))
}

func TestDLQManager_RetryUnknownJob(t *testing.T) {
	d := newTestDLQManager(&capturePublisher{})
	_, err := d.Retry(context.Background(), "no-such-job")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDLQManager_RetryPublishFailureKeepsEntry(t *testing.T) {
	pub := &capturePublisher{errs: []error{context.DeadlineExceeded}}
	d := newTestDLQManager(pub)
	original := deadLetter(t, d, domain.VendorHDI, nil)

	_, err := d.Retry(context.Background(), original.JobID)
	require.Error(t, err)
	// The entry stays indexed so the operator can try again.
	assert.Len(t, d.ListAll(), 1)
}
