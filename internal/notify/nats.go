package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/wayfind/internal/logfields"
)

// DefaultSubject is the NATS subject notifications are published on.
const DefaultSubject = "wayfind.notifications"

// NATSNotifier publishes notifications as JSON on a NATS subject so a menu-bar or
// dashboard client can subscribe to them.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
}

// DialNATS connects to url and returns a publisher for subject.
func DialNATS(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url, nats.Name("wayfind-supervisor"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if subject == "" {
		subject = DefaultSubject
	}
	slog.Info("NATS notifier connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSNotifier{conn: conn, subject: subject}, nil
}

func (n *NATSNotifier) Notify(_ context.Context, note Notification) {
	data, err := json.Marshal(note)
	if err != nil {
		slog.Error("Failed to marshal notification", logfields.Error(err))
		return
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		slog.Warn("Failed to publish notification", slog.String("subject", n.subject), logfields.Error(err))
	}
}

// Close flushes pending messages and closes the connection.
func (n *NATSNotifier) Close() {
	if n == nil || n.conn == nil {
		return
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
	}
}
