package voice

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shadowdrill/drill-core/internal/speech"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRateForLevel(t *testing.T) {
	cases := []struct {
		level Level
		want  float64
	}{
		{LevelA0A1, 0.75},
		{LevelA2, 0.82},
		{LevelB1, 0.9},
		{LevelB2, 0.95},
		{LevelC1C2, 1.0},
		{Level("unknown"), 0.9},
		{Level(""), 0.9},
	}
	prev := 0.0
	for _, c := range cases {
		got := RateForLevel(c.level)
		if got != c.want {
			t.Errorf("RateForLevel(%q) = %v, want %v", c.level, got, c.want)
		}
		if c.level != "unknown" && c.level != "" {
			if got < prev {
				t.Errorf("rates must increase with level, got %v after %v", got, prev)
			}
			prev = got
		}
	}
}

func TestNeuralKeywordBeatsLocalBonus(t *testing.T) {
	engine := speech.NewMockEngine([]speech.Voice{
		{Name: "Microsoft Frank", Lang: "nl-NL", Local: true},
		{Name: "Google Nederlands Neural", Lang: "nl-NL", Local: false},
	}, 0)
	s := NewSelector(engine, newLogger())

	v, ok := s.Best(context.Background(), "nl-NL")
	if !ok {
		t.Fatal("expected a voice")
	}
	if v.Name != "Google Nederlands Neural" {
		t.Fatalf("expected neural voice to win, got %q", v.Name)
	}
}

func TestPrimarySubtagMatching(t *testing.T) {
	engine := speech.NewMockEngine([]speech.Voice{
		{Name: "Vlaams", Lang: "nl-BE", Local: true},
		{Name: "Deutsch", Lang: "de-DE", Local: true},
	}, 0)
	s := NewSelector(engine, newLogger())

	v, ok := s.Best(context.Background(), "nl-NL")
	if !ok {
		t.Fatal("expected nl-BE voice to match nl-NL request")
	}
	if v.Lang != "nl-BE" {
		t.Fatalf("expected nl-BE, got %q", v.Lang)
	}
}

func TestNoMatchIsNotAnError(t *testing.T) {
	engine := speech.NewMockEngine([]speech.Voice{
		{Name: "Deutsch", Lang: "de-DE", Local: true},
	}, 0)
	s := NewSelector(engine, newLogger())

	if _, ok := s.Best(context.Background(), "nl-NL"); ok {
		t.Fatal("expected no voice for unmatched language")
	}
}

func TestTieBreakKeepsListOrder(t *testing.T) {
	engine := speech.NewMockEngine([]speech.Voice{
		{Name: "Nederlands Een", Lang: "nl-NL", Local: true},
		{Name: "Nederlands Twee", Lang: "nl-NL", Local: true},
	}, 0)
	s := NewSelector(engine, newLogger())

	v, ok := s.Best(context.Background(), "nl-NL")
	if !ok || v.Name != "Nederlands Een" {
		t.Fatalf("expected first listed voice on tie, got %q", v.Name)
	}
}

func TestCacheAndInvalidate(t *testing.T) {
	engine := speech.NewMockEngine([]speech.Voice{
		{Name: "Nederlands", Lang: "nl-NL", Local: true},
	}, 0)
	s := NewSelector(engine, newLogger())

	v, ok := s.Best(context.Background(), "nl-NL")
	if !ok || v.Name != "Nederlands" {
		t.Fatalf("unexpected first selection: %q", v.Name)
	}

	// A better voice appears later, but the cache still answers.
	engine.SetVoices([]speech.Voice{
		{Name: "Nederlands Neural", Lang: "nl-NL", Local: false},
		{Name: "Nederlands", Lang: "nl-NL", Local: true},
	})
	v, _ = s.Best(context.Background(), "nl-NL")
	if v.Name != "Nederlands" {
		t.Fatalf("expected cached voice, got %q", v.Name)
	}

	s.Invalidate()
	v, _ = s.Best(context.Background(), "nl-NL")
	if v.Name != "Nederlands Neural" {
		t.Fatalf("expected re-selection after invalidate, got %q", v.Name)
	}
}

func TestPrimarySubtag(t *testing.T) {
	cases := map[string]string{
		"nl-NL": "nl",
		"tr-TR": "tr",
		"TR":    "tr",
		"en":    "en",
	}
	for in, want := range cases {
		if got := PrimarySubtag(in); got != want {
			t.Errorf("PrimarySubtag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestScoreSumsKeywords(t *testing.T) {
	v := speech.Voice{Name: "Google Nederlands Neural", Lang: "nl-NL", Local: false}
	if got := Score(v); got != 160 {
		t.Fatalf("expected score 160 (google 60 + neural 100), got %d", got)
	}
	local := speech.Voice{Name: "Microsoft Frank", Lang: "nl-NL", Local: true}
	if got := Score(local); got != 60 {
		t.Fatalf("expected score 60 (microsoft 50 + local 10), got %d", got)
	}
}
