package resume

import (
	"strings"
	"testing"

	"github.com/shadowdrill/drill-core/internal/scenario"
)

func TestCourseID(t *testing.T) {
	got := ID(SourceCourse, IDParams{CourseID: "nl-a1", LessonID: "lesson-3"})
	if got != "course:nl-a1:lesson-3" {
		t.Fatalf("unexpected id: %s", got)
	}
	if got := ID(SourceCourse, IDParams{CourseID: "nl-a1"}); got != "unknown" {
		t.Fatalf("incomplete course params must not produce a stable id, got %s", got)
	}
}

func TestAIIDPrefersSavedID(t *testing.T) {
	got := ID(SourceAI, IDParams{SavedID: "42", Topic: "at the bakery", Level: "B1"})
	if got != "ai:42" {
		t.Fatalf("unexpected id: %s", got)
	}
}

func TestAIIDUnsavedSanitizesTopic(t *testing.T) {
	got := ID(SourceAI, IDParams{Topic: "at the bakery!", Level: "B1"})
	if got != "ai:unsaved:at_the_bakery_:B1" {
		t.Fatalf("unexpected id: %s", got)
	}
	// Missing level falls back to the lowest band.
	if got := ID(SourceAI, IDParams{Topic: "x"}); got != "ai:unsaved:x:A0-A1" {
		t.Fatalf("unexpected id: %s", got)
	}
}

func TestAIIDTopicTruncated(t *testing.T) {
	got := ID(SourceAI, IDParams{Topic: strings.Repeat("a", 100), Level: "B1"})
	want := "ai:unsaved:" + strings.Repeat("a", 40) + ":B1"
	if got != want {
		t.Fatalf("unexpected id: %s", got)
	}
}

func TestCustomIDContentHashIsStable(t *testing.T) {
	sc := &scenario.Scenario{
		Title:      "Bij de bakker",
		TargetLang: "nl-NL",
		NativeLang: "tr-TR",
		Lines:      []scenario.DialogueLine{{TargetText: "Hallo", PauseMultiplier: 1.0}},
	}
	a := ID(SourceCustom, IDParams{Scenario: sc})
	b := ID(SourceCustom, IDParams{Scenario: sc})
	if a != b {
		t.Fatalf("hash must be deterministic: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "custom:unsaved:") {
		t.Fatalf("unexpected id: %s", a)
	}

	other := *sc
	other.Title = "Op het station"
	if ID(SourceCustom, IDParams{Scenario: &other}) == a {
		t.Fatal("different scenarios must hash differently")
	}
}

func TestCustomIDNilScenario(t *testing.T) {
	if got := ID(SourceCustom, IDParams{}); got != "custom:unsaved:empty" {
		t.Fatalf("unexpected id: %s", got)
	}
}
