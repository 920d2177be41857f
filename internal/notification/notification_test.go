package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerNotifierWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	n := NewLoggerNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := n.Send(context.Background(), Message{
		Kind:        KindWalletCredited,
		Destination: "member-1",
		WalletID:    "wallet-1",
		Reference:   "mm-42",
		Body:        "You received 5000 XAF",
	})
	require.NoError(t, err)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "notification", record["msg"])
	assert.Equal(t, KindWalletCredited, record["kind"])
	assert.Equal(t, "wallet-1", record["wallet_id"])
	assert.Equal(t, "mm-42", record["reference"])
}

func TestNilLoggerNotifierIsNoop(t *testing.T) {
	var n *LoggerNotifier
	assert.NoError(t, n.Send(context.Background(), Message{Kind: KindP2PTransfer}))
}
