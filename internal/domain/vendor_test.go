package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVendor(t *testing.T) {
	v, err := ParseVendor("hdi")
	require.NoError(t, err)
	assert.Equal(t, VendorHDI, v)

	// Case-insensitive, canonicalized to lowercase.
	v, err = ParseVendor("  SURA ")
	require.NoError(t, err)
	assert.Equal(t, VendorSura, v)
	assert.Equal(t, "sura", v.String())
	assert.Equal(t, "SURA", v.Upper())

	_, err = ParseVendor("fake")
	assert.True(t, errors.Is(err, ErrInvalidVendor))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	_, ok := reg.Resolve(VendorHDI)
	assert.False(t, ok)

	reg.Register(VendorHDI, func(jobID string, payload map[string]any) Handler { return nil })
	reg.Register(VendorAXA, func(jobID string, payload map[string]any) Handler { return nil })

	_, ok = reg.Resolve(VendorHDI)
	assert.True(t, ok)
	assert.Equal(t, []Vendor{VendorAXA, VendorHDI}, reg.Registered())
}
