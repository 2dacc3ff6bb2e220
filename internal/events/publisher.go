// Package events publishes message lifecycle transitions to NATS so other
// processes on the machine (dashboards, loggers, automations) can observe
// queue activity without polling the HTTP API. Publishing is strictly
// best-effort: a broker outage never delays or fails playback.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/message"
)

// Subjects follow speakup.message.<status>.
const subjectPrefix = "speakup.message."

// Event is the wire payload published on each lifecycle transition.
type Event struct {
	MessageID int64  `json:"message_id"`
	Project   string `json:"project,omitempty"`
	Status    string `json:"status"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Publisher wraps a NATS connection with the one helper the coordinator
// needs. A nil *Publisher is valid and publishes nothing, so callers never
// branch on whether events are enabled.
type Publisher struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials NATS per the events config. Returns (nil, nil) when events
// are disabled.
func Connect(ctx context.Context, cfg config.EventsConfig, log *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("speakupd"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Publisher{conn: conn, log: log}, nil
}

// Publish emits one lifecycle event. Failures are logged, never returned:
// the playback path must not depend on the broker.
func (p *Publisher) Publish(msg message.Message) {
	if p == nil || p.conn == nil {
		return
	}
	ev := Event{
		MessageID: msg.ID,
		Project:   msg.Project,
		Status:    string(msg.Status),
		Text:      msg.Text,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("marshal event", slog.Any("error", err))
		return
	}
	subject := subjectPrefix + string(msg.Status)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn("publish event",
			slog.String("subject", subject),
			slog.Any("error", err))
	}
}

func (p *Publisher) Healthy() bool {
	return p != nil && p.conn != nil && p.conn.Status() == nats.CONNECTED
}

func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.log.Info("closing NATS connection")
	_ = p.conn.Drain()
	p.conn.Close()
}
