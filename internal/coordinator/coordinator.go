// Package coordinator runs the single select-and-play worker. It is the only
// component that moves messages through the playing slot, which is what
// guarantees at most one message plays at a time no matter how many
// producers submit concurrently.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/speakuplabs/speakupd/internal/events"
	"github.com/speakuplabs/speakupd/internal/message"
	"github.com/speakuplabs/speakupd/internal/player"
	"github.com/speakuplabs/speakupd/internal/queue"
)

// Coordinator owns the worker goroutine and the enqueue/interrupt surface
// the control plane calls into. All queue mutations flow through the queue
// manager; the coordinator adds playback sequencing and interrupt wiring on
// top.
type Coordinator struct {
	queue  *queue.Manager
	player *player.Player
	events *events.Publisher
	log    *slog.Logger

	meter        metric.Meter
	submitted    metric.Int64Counter
	finished     metric.Int64Counter
	playDuration metric.Float64Histogram

	mu          sync.Mutex
	playingDone chan struct{}  // non-nil while a message occupies the playing slot
	lastOutcome message.Status // terminal status of the most recent playback
}

func New(q *queue.Manager, p *player.Player, ev *events.Publisher, log *slog.Logger) *Coordinator {
	c := &Coordinator{
		queue:  q,
		player: p,
		events: ev,
		log:    log.With(slog.String("component", "coordinator")),
		meter:  otel.Meter("github.com/speakuplabs/speakupd/coordinator"),
	}
	if err := c.initMetrics(); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return c
}

func (c *Coordinator) initMetrics() error {
	var err error
	c.submitted, err = c.meter.Int64Counter("speakup.messages.submitted",
		metric.WithDescription("Messages accepted into the queue"))
	if err != nil {
		return err
	}
	c.finished, err = c.meter.Int64Counter("speakup.messages.finished",
		metric.WithDescription("Messages reaching a terminal status, by status"))
	if err != nil {
		return err
	}
	c.playDuration, err = c.meter.Float64Histogram("speakup.playback.duration_ms",
		metric.WithDescription("Audio duration of completed playbacks"),
		metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	_, err = c.meter.Int64ObservableGauge("speakup.queue.depth",
		metric.WithDescription("Messages waiting to play"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			_, pending := c.queue.Snapshot()
			o.Observe(int64(len(pending)))
			return nil
		}))
	return err
}

// Speak validates and enqueues one submission. It returns as soon as the
// message is durably recorded; producers never wait for playback. A
// submission with Interrupt set additionally cancels whatever is playing, so
// the new message starts within the audio buffer latency.
func (c *Coordinator) Speak(ctx context.Context, sub message.Submit) (int64, int, error) {
	id, pos, err := c.queue.Enqueue(ctx, sub)
	if err != nil {
		return 0, 0, err
	}
	c.count(ctx, c.submitted, 1, string(message.StatusQueued))
	c.events.Publish(message.Message{ID: id, Project: sub.Project, Status: message.StatusQueued, Text: sub.Text})

	if sub.Interrupt {
		c.player.Cancel()
	}
	return id, pos, nil
}

// StopAll clears every queued message and cancels the playing one, then
// waits until the playing slot is actually free. After it returns, status()
// observes an empty queue and nothing playing. stopped reports whether a
// playback was actually cut short; a message that finished on its own while
// the call waited is not claimed as stopped.
func (c *Coordinator) StopAll(ctx context.Context) (cleared []int64, stopped bool, err error) {
	cleared = c.queue.Clear(ctx)

	c.mu.Lock()
	done := c.playingDone
	c.mu.Unlock()

	if done != nil {
		c.player.Cancel()
		select {
		case <-done:
			c.mu.Lock()
			stopped = c.lastOutcome == message.StatusSkipped
			c.mu.Unlock()
		case <-ctx.Done():
			return cleared, false, ctx.Err()
		}
	}
	if len(cleared) > 0 {
		c.log.Info("cleared queued messages", slog.Int("count", len(cleared)))
	}
	return cleared, stopped, nil
}

// Run executes the select-and-play cycle until ctx is cancelled. It suspends
// on an empty queue and wakes on the next enqueue; there is no polling.
func (c *Coordinator) Run(ctx context.Context) error {
	c.log.Info("coordination loop started")
	for {
		msg, err := c.queue.PeekNext(ctx)
		if err != nil {
			c.log.Info("coordination loop stopped")
			return nil
		}

		// Arm the cancellation hook and publish the done channel before the
		// message becomes visible as playing. Any interrupt or stop-all that
		// observes the playing slot occupied is then guaranteed to land, even
		// if Play itself has not begun yet.
		done := make(chan struct{})
		c.mu.Lock()
		c.playingDone = done
		c.mu.Unlock()
		c.player.Arm(ctx)

		if err := c.queue.MarkPlaying(ctx, msg.ID); err != nil {
			c.player.Disarm()
			c.mu.Lock()
			c.playingDone = nil
			c.mu.Unlock()
			close(done)
			var se *queue.StateError
			if errors.As(err, &se) {
				// The head changed between peek and mark (removed or
				// replaced by an interrupt); re-read the queue.
				continue
			}
			return err
		}

		msg.Status = message.StatusPlaying
		c.events.Publish(msg)
		c.log.Info("playing message",
			slog.Int64("id", msg.ID),
			slog.String("project", msg.Project),
			slog.String("tone", string(msg.Tone)))

		pb := c.player.Play(msg)
		status, cause := classify(pb)

		if err := c.queue.MarkTerminal(ctx, msg.ID, status, pb.DurationMS, cause); err != nil {
			c.log.Error("failed to finalize message",
				slog.Int64("id", msg.ID), slog.String("error", err.Error()))
		}

		c.mu.Lock()
		c.playingDone = nil
		c.lastOutcome = status
		c.mu.Unlock()
		close(done)

		c.count(ctx, c.finished, 1, string(status))
		if status == message.StatusPlayed && c.playDuration != nil {
			c.playDuration.Record(ctx, pb.DurationMS)
		}
		msg.Status = status
		c.events.Publish(msg)

		if status == message.StatusFailed {
			c.log.Warn("message failed",
				slog.Int64("id", msg.ID), slog.String("cause", cause))
		}
	}
}

// classify maps a playback outcome onto a terminal message status. Cancelled
// covers explicit interrupts, stop-all, and daemon shutdown alike.
func classify(pb player.Playback) (message.Status, string) {
	switch pb.Result {
	case player.ResultCompleted:
		return message.StatusPlayed, ""
	case player.ResultCancelled:
		return message.StatusSkipped, ""
	default:
		cause := "playback error"
		if pb.Err != nil {
			cause = pb.Err.Error()
		}
		return message.StatusFailed, cause
	}
}

// Status reports the playing message (if any) and the ordered pending list.
func (c *Coordinator) Status() (*message.Message, []message.Message) {
	return c.queue.Snapshot()
}

func (c *Coordinator) count(ctx context.Context, counter metric.Int64Counter, n int64, status string) {
	if counter == nil {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attribute.String("status", status)))
}
