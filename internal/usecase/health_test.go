package usecase

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePinger struct {
	connected bool
	pingErr   error
	pings     atomic.Int32
}

func (f *fakePinger) Connected() bool { return f.connected }

func (f *fakePinger) Ping(context.Context) error {
	f.pings.Add(1)
	return f.pingErr
}

func TestHealthCheck_Healthy(t *testing.T) {
	p := &fakePinger{connected: true}
	h := NewHealthCache(p)

	report := h.Check(context.Background())
	assert.Equal(t, StatusHealthy, report.Status)
	assert.True(t, report.Broker.Connected)
	require.NotNil(t, report.Broker.IsAlive)
	assert.True(t, *report.Broker.IsAlive)
	assert.NotEmpty(t, report.Timestamp)
}

func TestHealthCheck_Degraded(t *testing.T) {
	p := &fakePinger{connected: true, pingErr: errors.New("timeout")}
	h := NewHealthCache(p)

	report := h.Check(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Broker.Connected)
	require.NotNil(t, report.Broker.IsAlive)
	assert.False(t, *report.Broker.IsAlive)
	assert.NotEmpty(t, report.Broker.Error)
}

func TestHealthCheck_DownSessionIsDegraded(t *testing.T) {
	p := &fakePinger{connected: false}
	h := NewHealthCache(p)

	report := h.Check(context.Background())
	// The verdict vocabulary is binary: anything short of a live ping
	// is degraded.
	assert.Equal(t, StatusDegraded, report.Status)
	assert.False(t, report.Broker.Connected)
	// Liveness is unknown when no ping was attempted.
	assert.Nil(t, report.Broker.IsAlive)
	assert.Equal(t, int32(0), p.pings.Load())
}

func TestHealthCheck_CachesWhileFresh(t *testing.T) {
	p := &fakePinger{connected: true}
	h := NewHealthCache(p)

	h.Check(context.Background())
	h.Check(context.Background())
	h.Check(context.Background())
	assert.Equal(t, int32(1), p.pings.Load())
}

func TestHealthCheck_InvalidateForcesProbe(t *testing.T) {
	p := &fakePinger{connected: true}
	h := NewHealthCache(p)

	h.Check(context.Background())
	h.Invalidate()
	h.Check(context.Background())
	assert.Equal(t, int32(2), p.pings.Load())
}

func TestHealthCheck_RecoveryObserved(t *testing.T) {
	p := &fakePinger{connected: false}
	h := NewHealthCache(p)

	assert.Equal(t, StatusDegraded, h.Check(context.Background()).Status)

	// Broker comes back; a non-healthy verdict only holds for its
	// short TTL, so force expiry and observe the recovery.
	p.connected = true
	h.Invalidate()
	assert.Equal(t, StatusHealthy, h.Check(context.Background()).Status)
}
