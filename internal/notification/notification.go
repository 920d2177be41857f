package notification

import (
	"context"
	"log/slog"
)

const (
	// KindWalletCredited is sent when funds land in a member's wallet.
	KindWalletCredited = "wallet_credited"
	// KindWalletDebited is sent when funds leave a member's wallet.
	KindWalletDebited = "wallet_debited"
	// KindP2PTransfer indicates a P2P payment event.
	KindP2PTransfer = "p2p_transfer"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	WalletID    string
	Reference   string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger until an SMS
// or push gateway is attached.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.InfoContext(ctx, "notification",
		slog.String("kind", message.Kind),
		slog.String("destination", message.Destination),
		slog.String("wallet_id", message.WalletID),
		slog.String("reference", message.Reference),
		slog.String("body", message.Body),
	)
	return nil
}
