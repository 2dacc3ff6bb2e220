// Package queue implements the in-memory ordered collection of pending and
// playing messages. It owns queue-position and interrupt semantics; all
// mutations are serialized under one lock and every transition is mirrored
// into the history store.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/history"
	"github.com/speakuplabs/speakupd/internal/message"
)

// StateError signals a queue transition called out of sequence. It is a
// programming bug in the caller, not a recoverable runtime condition.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("queue %s: %s", e.Op, e.Reason)
}

// Manager is the single serialized mutation path for the queue. At most one
// message is in the playing slot at any time; ids are assigned under the
// lock so id order always matches arrival order.
type Manager struct {
	store *history.Store
	log   *slog.Logger
	cfg   config.QueueConfig
	clock func() time.Time

	mu      sync.Mutex
	pending []*message.Message
	current *message.Message

	notify chan struct{}
}

func New(store *history.Store, cfg config.QueueConfig, log *slog.Logger) *Manager {
	return &Manager{
		store:  store,
		log:    log.With(slog.String("component", "queue")),
		cfg:    cfg,
		clock:  time.Now,
		notify: make(chan struct{}, 1),
	}
}

// Enqueue validates a submission, durably records it, and appends it to the
// pending list. A submission with Interrupt set is promoted to the head so it
// plays next; messages already queued keep their relative order behind it.
// The returned position counts only messages ahead of the new one; the
// playing message, if any, is reported separately by Snapshot.
func (m *Manager) Enqueue(ctx context.Context, sub message.Submit) (int64, int, error) {
	msg, err := message.New(sub, m.cfg.MaxTextLen)
	if err != nil {
		return 0, 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	msg.SubmittedAt = m.clock()

	// Holding the lock across the insert makes id assignment atomic with
	// respect to concurrent enqueues: ids and queue order never diverge.
	id, err := m.store.Insert(ctx, msg)
	if err != nil {
		return 0, 0, err
	}
	msg.ID = id

	var pos int
	if msg.Interrupt {
		m.pending = append([]*message.Message{&msg}, m.pending...)
		pos = 0
	} else {
		m.pending = append(m.pending, &msg)
		pos = len(m.pending) - 1
	}

	select {
	case m.notify <- struct{}{}:
	default:
	}
	return id, pos, nil
}

// PeekNext blocks until the pending list has a head or ctx is cancelled, and
// returns a copy of the head without removing it.
func (m *Manager) PeekNext(ctx context.Context) (message.Message, error) {
	for {
		m.mu.Lock()
		if len(m.pending) > 0 {
			head := *m.pending[0]
			m.mu.Unlock()
			return head, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return message.Message{}, ctx.Err()
		case <-m.notify:
		}
	}
}

// Remove drops a still-queued message. It is a no-op, not an error, if the
// message is already playing or gone; callers must not assume removal has
// effect. The removed message is recorded as skipped.
func (m *Manager) Remove(ctx context.Context, id int64) bool {
	m.mu.Lock()
	var removed *message.Message
	for i, p := range m.pending {
		if p.ID == id {
			removed = p
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if removed == nil {
		return false
	}
	m.persistTerminal(ctx, id, message.StatusSkipped, 0, "")
	return true
}

// MarkPlaying transitions the head of the queue into the playing slot. It
// fails with a StateError if id is not the queued head, which the
// coordination loop treats as "re-read the queue".
func (m *Manager) MarkPlaying(ctx context.Context, id int64) error {
	m.mu.Lock()
	if m.current != nil {
		m.mu.Unlock()
		return &StateError{Op: "mark playing", Reason: fmt.Sprintf("message %d is still playing", m.current.ID)}
	}
	if len(m.pending) == 0 || m.pending[0].ID != id {
		m.mu.Unlock()
		return &StateError{Op: "mark playing", Reason: fmt.Sprintf("message %d is not the queued head", id)}
	}
	msg := m.pending[0]
	m.pending = m.pending[1:]
	now := m.clock()
	msg.Status = message.StatusPlaying
	msg.StartedAt = &now
	m.current = msg
	m.mu.Unlock()

	if err := m.store.MarkPlaying(context.WithoutCancel(ctx), id, now); err != nil {
		m.log.Error("failed to persist playing transition",
			slog.Int64("id", id), slog.String("error", err.Error()))
	}
	return nil
}

// MarkTerminal finalizes the currently playing message. cause is recorded for
// failed messages only.
func (m *Manager) MarkTerminal(ctx context.Context, id int64, status message.Status, durationMS float64, cause string) error {
	if !status.Terminal() {
		return &StateError{Op: "mark terminal", Reason: fmt.Sprintf("status %q is not terminal", status)}
	}

	m.mu.Lock()
	if m.current == nil || m.current.ID != id {
		m.mu.Unlock()
		return &StateError{Op: "mark terminal", Reason: fmt.Sprintf("message %d is not playing", id)}
	}
	now := m.clock()
	m.current.Status = status
	m.current.FinishedAt = &now
	m.current = nil
	m.mu.Unlock()

	m.persistTerminal(ctx, id, status, durationMS, cause)
	return nil
}

// Clear skips every still-queued message and returns their ids, oldest
// first. The playing message is not touched; stopping it is the coordination
// loop's job.
func (m *Manager) Clear(ctx context.Context) []int64 {
	m.mu.Lock()
	cleared := m.pending
	m.pending = nil
	m.mu.Unlock()

	ids := make([]int64, 0, len(cleared))
	for _, msg := range cleared {
		ids = append(ids, msg.ID)
		m.persistTerminal(ctx, msg.ID, message.StatusSkipped, 0, "")
	}
	return ids
}

// Snapshot returns the playing message (if any) and the ordered pending list
// as one atomic read.
func (m *Manager) Snapshot() (*message.Message, []message.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current *message.Message
	if m.current != nil {
		c := *m.current
		current = &c
	}
	pending := make([]message.Message, len(m.pending))
	for i, p := range m.pending {
		pending[i] = *p
	}
	return current, pending
}

// persistTerminal mirrors a terminal transition into the history store. The
// store retries once internally; a persistence failure is logged and does not
// block the queue. The write is shielded from the caller's cancellation:
// shutdown cancels the loop context, but the skipped/played row must still
// land now rather than waiting for next-boot recovery.
func (m *Manager) persistTerminal(ctx context.Context, id int64, status message.Status, durationMS float64, cause string) {
	if err := m.store.MarkTerminal(context.WithoutCancel(ctx), id, status, m.clock(), durationMS, cause); err != nil {
		m.log.Error("failed to persist terminal status",
			slog.Int64("id", id), slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}
