package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/message"
)

func startBroker(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      server.RANDOM_PORT,
		JetStream: false,
	})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("broker did not start")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConnectDisabledReturnsNil(t *testing.T) {
	p, err := Connect(context.Background(), config.EventsConfig{Enabled: false}, discardLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if p != nil {
		t.Fatal("disabled events must yield a nil publisher")
	}
	// A nil publisher must be safe to use.
	p.Publish(message.Message{ID: 1, Status: message.StatusQueued})
	p.Close()
	if p.Healthy() {
		t.Fatal("nil publisher cannot be healthy")
	}
}

func TestPublishDeliversLifecycleEvents(t *testing.T) {
	ns := startBroker(t)

	p, err := Connect(context.Background(), config.EventsConfig{
		Enabled:        true,
		Servers:        []string{ns.ClientURL()},
		ConnectTimeout: 2000,
	}, discardLogger())
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}
	t.Cleanup(p.Close)
	if !p.Healthy() {
		t.Fatal("expected healthy publisher")
	}

	sub, err := nats.Connect(ns.ClientURL())
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	t.Cleanup(sub.Close)

	inbox := make(chan *nats.Msg, 4)
	subscription, err := sub.ChanSubscribe("speakup.message.*", inbox)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	t.Cleanup(func() { _ = subscription.Unsubscribe() })
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	p.Publish(message.Message{ID: 42, Project: "build", Status: message.StatusPlayed, Text: "done"})

	select {
	case msg := <-inbox:
		if msg.Subject != "speakup.message.played" {
			t.Fatalf("unexpected subject %s", msg.Subject)
		}
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		if ev.MessageID != 42 || ev.Project != "build" || ev.Status != "played" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("event never arrived")
	}
}
