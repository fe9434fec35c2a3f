package playback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shadowdrill/drill-core/internal/config"
	"github.com/shadowdrill/drill-core/internal/scenario"
	"github.com/shadowdrill/drill-core/internal/speech"
	"github.com/shadowdrill/drill-core/internal/voice"
)

func fastPlaybackConfig() config.PlaybackConfig {
	return config.PlaybackConfig{
		MinPauseMS:       1,
		GapMS:            1,
		ReadingMSPerChar: 1,
		MutedNativeLangs: []string{"tr"},
	}
}

func testScenario(lines int) scenario.Scenario {
	sc := scenario.Scenario{
		Title:      "Bij de bakker",
		TargetLang: "nl-NL",
		NativeLang: "tr-TR",
	}
	for i := 0; i < lines; i++ {
		sc.Lines = append(sc.Lines, scenario.DialogueLine{
			ID:              i + 1,
			TargetText:      "Hallo",
			NativeText:      "Merhaba",
			PauseMultiplier: 1.0,
		})
	}
	return sc
}

func newSequencer(engine speech.Engine, cfg config.PlaybackConfig) *Sequencer {
	return NewSequencer(newDriver(engine), cfg, newLogger())
}

func collect(t *testing.T, statuses <-chan Status, errs <-chan error) ([]Status, error) {
	t.Helper()
	var got []Status
	for st := range statuses {
		got = append(got, st)
	}
	return got, <-errs
}

func TestPracticePauseFloor(t *testing.T) {
	floor := 1500 * time.Millisecond
	cases := []struct {
		measured   time.Duration
		multiplier float64
		want       time.Duration
	}{
		{0, 0.5, floor},
		{0, 3.0, floor},
		{time.Second, 0.5, floor},
		{time.Second, 1.0, floor},
		{time.Second, 2.0, 2 * time.Second},
		{4 * time.Second, 3.0, 12 * time.Second},
		{2 * time.Second, 0.75, floor},
	}
	for _, c := range cases {
		got := practicePause(c.measured, c.multiplier, floor)
		if got != c.want {
			t.Errorf("practicePause(%v, %v) = %v, want %v", c.measured, c.multiplier, got, c.want)
		}
		if got < floor {
			t.Errorf("practicePause(%v, %v) = %v below floor", c.measured, c.multiplier, got)
		}
	}
}

func TestPhaseOrderPerLine(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(1), voice.LevelB1, 0)
	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Phase{PhaseTarget, PhasePause, PhaseNative, PhaseGap, PhaseRepeat, PhasePause}
	if len(got) != len(want) {
		t.Fatalf("expected %d statuses, got %d", len(want), len(got))
	}
	for i, st := range got {
		if st.Phase != want[i] {
			t.Errorf("status %d: expected phase %q, got %q", i, want[i], st.Phase)
		}
		if st.LineIndex != 0 || st.TotalLines != 1 {
			t.Errorf("status %d: unexpected indices %d/%d", i, st.LineIndex, st.TotalLines)
		}
	}
	if got[0].Text != "Hallo" || got[0].NativeText != "Merhaba" {
		t.Errorf("unexpected target status payload: %+v", got[0])
	}
	if got[3].Text != "" {
		t.Errorf("gap status must carry empty text, got %q", got[3].Text)
	}
}

func TestExhaustionEmitsSixPerLine(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	const n = 3
	statuses, errs := seq.Play(context.Background(), testScenario(n), voice.LevelB1, 0)
	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 6*n {
		t.Fatalf("expected %d statuses, got %d", 6*n, len(got))
	}
	for i, st := range got {
		if want := i / 6; st.LineIndex != want {
			t.Fatalf("status %d: expected line %d, got %d", i, want, st.LineIndex)
		}
	}
}

func TestResumeFromStartIndex(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(3), voice.LevelB1, 1)
	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) == 0 {
		t.Fatal("expected statuses")
	}
	if got[0].LineIndex != 1 {
		t.Fatalf("expected first status at line 1, got %d", got[0].LineIndex)
	}
	for _, st := range got {
		if st.LineIndex < 1 {
			t.Fatalf("line %d emitted before start index", st.LineIndex)
		}
	}
	if len(got) != 12 {
		t.Fatalf("expected 12 statuses for 2 remaining lines, got %d", len(got))
	}
}

func TestStartIndexPastEndEndsImmediately(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(2), voice.LevelB1, 5)
	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no statuses, got %d", len(got))
	}
}

func TestCancellationAfterFirstStatus(t *testing.T) {
	// Slow engine keeps the target utterance in flight until cancelled.
	engine := speech.NewMockEngine(nil, time.Minute)
	seq := newSequencer(engine, fastPlaybackConfig())

	ctx, cancel := context.WithCancel(context.Background())
	statuses, errs := seq.Play(ctx, testScenario(1), voice.LevelB1, 0)

	first := <-statuses
	if first.Phase != PhaseTarget || first.LineIndex != 0 {
		t.Fatalf("unexpected first status: %+v", first)
	}
	cancel()

	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("cancellation must not produce an error, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no statuses after cancellation, got %d", len(got))
	}
}

func TestMutedNativeLanguageIsNeverSpoken(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(2), voice.LevelB1, 0)
	if _, err := collect(t, statuses, errs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, utt := range engine.Spoken() {
		if utt.Lang == "tr-TR" {
			t.Fatalf("native Turkish text was spoken: %+v", utt)
		}
	}
	// Two utterances per line: target and repeat.
	if got := len(engine.Spoken()); got != 4 {
		t.Fatalf("expected 4 utterances, got %d", got)
	}
}

func TestUnmutedNativeLanguageIsSpoken(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	sc := testScenario(1)
	sc.NativeLang = "en-US"
	sc.Lines[0].NativeText = "Hello"

	statuses, errs := seq.Play(context.Background(), sc, voice.LevelB1, 0)
	if _, err := collect(t, statuses, errs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spoken := engine.Spoken()
	if len(spoken) != 3 {
		t.Fatalf("expected 3 utterances, got %d", len(spoken))
	}
	if spoken[1].Lang != "en-US" || spoken[1].Text != "Hello" {
		t.Fatalf("expected native utterance second, got %+v", spoken[1])
	}
	if spoken[1].Rate != voice.DefaultRate {
		t.Fatalf("native speech must use the default rate, got %v", spoken[1].Rate)
	}
}

func TestLevelRateAppliedToTargetSpeech(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(1), voice.LevelA0A1, 0)
	if _, err := collect(t, statuses, errs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, utt := range engine.Spoken() {
		if utt.Lang == "nl-NL" && utt.Rate != 0.75 {
			t.Fatalf("expected rate 0.75 for A0-A1 target speech, got %v", utt.Rate)
		}
	}
}

func TestSynthesisFailureEndsSequenceWithError(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	engine.FailNext(errors.New("engine exploded"))
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(2), voice.LevelB1, 0)
	got, err := collect(t, statuses, errs)
	if err == nil {
		t.Fatal("expected synthesis error")
	}
	if !IsSynthesisError(err) {
		t.Fatalf("expected SynthesisError, got %T", err)
	}
	if len(got) != 1 || got[0].Phase != PhaseTarget {
		t.Fatalf("expected only the first target status, got %+v", got)
	}
}

func TestEmptyScenarioExhaustsImmediately(t *testing.T) {
	engine := speech.NewMockEngine(nil, 0)
	seq := newSequencer(engine, fastPlaybackConfig())

	statuses, errs := seq.Play(context.Background(), testScenario(0), voice.LevelB1, 0)
	got, err := collect(t, statuses, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no statuses, got %d", len(got))
	}
}
