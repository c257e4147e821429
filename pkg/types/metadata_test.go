package types

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetadataValueAndScanRoundTrip(t *testing.T) {
	m := Metadata{"reason": "customer_request", "notified": true}
	raw, err := m.Value()
	require.NoError(t, err)

	var decoded Metadata
	require.NoError(t, decoded.Scan(string(raw.([]byte))))
	require.Equal(t, "customer_request", decoded.String("reason"))
	require.True(t, decoded.Bool("notified"))
}

func TestMetadataNilHandling(t *testing.T) {
	var m Metadata
	raw, err := m.Value()
	require.NoError(t, err)
	require.Equal(t, []byte("{}"), raw)

	require.NoError(t, m.Scan(nil))
	require.NotNil(t, m)
	require.Empty(t, m.String("missing"))

	merged := Metadata(nil).Merge(map[string]any{"a": 1})
	require.Equal(t, 1, merged["a"])
}

func TestMetadataScanRejectsUnknownTypes(t *testing.T) {
	var m Metadata
	require.Error(t, m.Scan(42))
}
