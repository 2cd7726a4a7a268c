package hermes

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

func TestNewClient_WithoutServer(t *testing.T) {
	c, err := NewClient(context.Background(), Options{URL: "nats://127.0.0.1:1", Name: "rapport-test", QueueGroup: DefaultQueueGroup},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("expected a reconnecting client, got %v", err)
	}
	if c.Connected() {
		t.Error("expected client without a server to report disconnected")
	}
	if err := c.Subscribe(SubjectInteractionAnalyzed, func(string, []byte) {}); err != nil {
		t.Errorf("subscribe while reconnecting: %v", err)
	}
	c.Close()
}
