package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/speakuplabs/speakupd/internal/config"
	"github.com/speakuplabs/speakupd/internal/message"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *Store {
	t.Helper()
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db")}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func queuedMessage(text string) message.Message {
	m, _ := message.New(message.Submit{Text: text, Project: "test"}, 0)
	m.SubmittedAt = time.Now()
	return m
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	var last int64
	for i := 0; i < 5; i++ {
		id, err := s.Insert(ctx, queuedMessage("hello"))
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		if id <= last {
			t.Fatalf("ids must be strictly increasing: got %d after %d", id, last)
		}
		last = id
	}
}

func TestLifecycleRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, queuedMessage("build complete"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	started := time.Now()
	if err := s.MarkPlaying(ctx, id, started); err != nil {
		t.Fatalf("mark playing: %v", err)
	}
	if err := s.MarkTerminal(ctx, id, message.StatusPlayed, started.Add(2*time.Second), 2000, ""); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.ID != id || r.Status != message.StatusPlayed {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.StartedAt == nil || r.FinishedAt == nil {
		t.Fatal("expected start and finish timestamps")
	}
	if r.DurationMS != 2000 {
		t.Fatalf("expected duration 2000, got %v", r.DurationMS)
	}
}

func TestMarkTerminalRejectsNonTerminal(t *testing.T) {
	s := openStore(t)
	if err := s.MarkTerminal(context.Background(), 1, message.StatusPlaying, time.Now(), 0, ""); err == nil {
		t.Fatal("expected error for non-terminal status")
	}
}

func TestMarkTerminalIsFinal(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, queuedMessage("done once"))
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.MarkPlaying(ctx, id, time.Now()); err != nil {
		t.Fatalf("mark playing: %v", err)
	}
	if err := s.MarkTerminal(ctx, id, message.StatusPlayed, time.Now(), 1500, ""); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	err = s.MarkTerminal(ctx, id, message.StatusSkipped, time.Now(), 0, "")
	if !errors.Is(err, ErrFinalized) {
		t.Fatalf("expected ErrFinalized rewriting a terminal row, got %v", err)
	}
	var pe *PersistenceError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PersistenceError wrapper, got %v", err)
	}

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Status != message.StatusPlayed {
		t.Fatalf("terminal row must keep its original status, got %+v", records)
	}
	if records[0].DurationMS != 1500 {
		t.Fatalf("terminal row must keep its duration, got %v", records[0].DurationMS)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	first, _ := s.Insert(ctx, queuedMessage("first"))
	second, _ := s.Insert(ctx, queuedMessage("second"))

	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if records[0].ID != second || records[1].ID != first {
		t.Fatalf("expected newest first, got %d then %d", records[0].ID, records[1].ID)
	}
}

func TestRecoverInterruptedAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(dir, "history.db")}
	ctx := context.Background()

	s, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	id, _ := s.Insert(ctx, queuedMessage("stuck"))
	if err := s.MarkPlaying(ctx, id, time.Now()); err != nil {
		t.Fatalf("mark playing: %v", err)
	}
	_ = s.Close() // simulate crash mid-playback

	s2, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	t.Cleanup(func() { _ = s2.Close() })

	records, err := s2.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Status != message.StatusSkipped {
		t.Fatalf("expected recovered row marked skipped, got %+v", records)
	}
}

func TestPruneByRetention(t *testing.T) {
	cfg := config.HistoryConfig{Path: filepath.Join(t.TempDir(), "history.db"), RetentionDays: 1}
	ctx := context.Background()
	s, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	old := queuedMessage("old")
	old.SubmittedAt = time.Now().Add(-72 * time.Hour)
	if _, err := s.Insert(ctx, old); err != nil {
		t.Fatalf("insert old: %v", err)
	}
	if _, err := s.Insert(ctx, queuedMessage("fresh")); err != nil {
		t.Fatalf("insert fresh: %v", err)
	}

	if err := s.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}
	records, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].Text != "fresh" {
		t.Fatalf("expected only fresh record, got %+v", records)
	}
}
