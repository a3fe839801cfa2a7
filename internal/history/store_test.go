package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/LordLuceus/melonaccess/internal/config"
	"github.com/LordLuceus/melonaccess/internal/output"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Append(context.Background(), Utterance{Text: "hi", Formatted: "hi"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
	utterances, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utterances) != 0 {
		t.Fatalf("ephemeral store must not retain anything, got %d", len(utterances))
	}
}

func TestAppendAndListRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	for _, u := range []Utterance{
		{Speaker: "Phoenix", Text: "Hold it!", Formatted: "Phoenix: Hold it!", Category: 0},
		{Text: "Saved.", Formatted: "Saved.", Category: 4},
	} {
		if err := s.Append(context.Background(), u); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	utterances, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utterances))
	}
	if utterances[0].Formatted != "Saved." {
		t.Fatalf("expected newest first, got %q", utterances[0].Formatted)
	}
	if utterances[1].Speaker != "Phoenix" || utterances[1].Category != 0 {
		t.Fatalf("unexpected row: %+v", utterances[1])
	}
}

func TestRecordAbsorbsIntoStore(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.Record(output.Utterance{
		Speaker:   "A",
		Text:      "hi",
		Formatted: "A: hi",
		Category:  output.CategoryDialogue,
		At:        time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	})

	utterances, err := s.ListRecent(context.Background(), 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utterances) != 1 || utterances[0].Formatted != "A: hi" {
		t.Fatalf("expected recorded utterance, got %+v", utterances)
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{
		Path:          filepath.Join(tmp, "history.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxUtterances: 2,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Utterance{Text: "old", Formatted: "old"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	for _, text := range []string{"one", "two", "three"} {
		if err := s.Append(context.Background(), Utterance{Text: text, Formatted: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	utterances, err := s.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(utterances) != 2 {
		t.Fatalf("expected retention cap of 2, got %d", len(utterances))
	}
	for _, u := range utterances {
		if u.Formatted == "old" {
			t.Fatalf("expected aged-out row pruned, got %+v", utterances)
		}
	}
}
