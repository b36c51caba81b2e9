package obssink

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBundleHandlerSignature exercises the handler shape Subscribe wires
// up; connecting to a real NATS server is outside this package's test
// scope since this module never runs a broker in-process.
func TestBundleHandlerSignature(t *testing.T) {
	var captured json.RawMessage
	var handler BundleHandler = func(_ context.Context, raw json.RawMessage) {
		captured = raw
	}

	handler(context.Background(), json.RawMessage(`{"bundle_id":"b1"}`))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(captured, &decoded))
	require.Equal(t, "b1", decoded["bundle_id"])
}
