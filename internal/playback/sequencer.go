package playback

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/shadowdrill/drill-core/internal/config"
	"github.com/shadowdrill/drill-core/internal/scenario"
	"github.com/shadowdrill/drill-core/internal/voice"
)

// Phase is one named step in the per-line drill cycle.
type Phase string

const (
	PhaseTarget Phase = "target"
	PhasePause  Phase = "pause"
	PhaseNative Phase = "native"
	PhaseGap    Phase = "gap"
	PhaseRepeat Phase = "repeat"
)

// Status is emitted at every phase transition so consumers can render the
// current line and phase.
type Status struct {
	LineIndex  int    `json:"line_index"`
	TotalLines int    `json:"total_lines"`
	Phase      Phase  `json:"phase"`
	Text       string `json:"text"`
	NativeText string `json:"native_text,omitempty"`
}

// Sequencer drives the listen / practice-pause / translation / repeat cycle
// over a scenario. Strictly sequential: no overlapping speech, at most one
// in-flight delay.
type Sequencer struct {
	driver *Driver
	cfg    config.PlaybackConfig
	log    *slog.Logger
}

func NewSequencer(driver *Driver, cfg config.PlaybackConfig, log *slog.Logger) *Sequencer {
	return &Sequencer{
		driver: driver,
		cfg:    cfg,
		log:    log.With(slog.String("component", "sequencer")),
	}
}

// Play walks the scenario from startIndex to the end, emitting one Status per
// phase. The status channel closes on exhaustion or cancellation; the error
// channel delivers at most one genuine synthesis failure. Cancellation ends
// the stream silently: it is success of the streaming contract, not failure.
// A finished stream cannot be rewound; call Play again to replay.
func (s *Sequencer) Play(ctx context.Context, sc scenario.Scenario, level voice.Level, startIndex int) (<-chan Status, <-chan error) {
	statuses := make(chan Status)
	errs := make(chan error, 1)

	if startIndex < 0 {
		startIndex = 0
	}
	rate := voice.RateForLevel(level)
	floor := time.Duration(s.cfg.MinPauseMS) * time.Millisecond
	gap := time.Duration(s.cfg.GapMS) * time.Millisecond

	go func() {
		defer close(statuses)
		defer close(errs)

		for i := startIndex; i < len(sc.Lines); i++ {
			line := sc.Lines[i]

			emit := func(phase Phase, text, nativeText string) bool {
				st := Status{
					LineIndex:  i,
					TotalLines: len(sc.Lines),
					Phase:      phase,
					Text:       text,
					NativeText: nativeText,
				}
				select {
				case <-ctx.Done():
					return false
				case statuses <- st:
					return true
				}
			}

			// Phase 1: speak the target phrase and measure it.
			if !emit(PhaseTarget, line.TargetText, line.NativeText) {
				return
			}
			targetDuration, err := s.driver.Speak(ctx, line.TargetText, sc.TargetLang, rate)
			if err != nil {
				errs <- err
				return
			}
			if ctx.Err() != nil {
				return
			}

			// Phase 2: silent practice pause scaled from the measurement.
			// Computed once; phase 6 reuses it.
			pause := practicePause(targetDuration, line.PauseMultiplier, floor)
			if !emit(PhasePause, line.TargetText, line.NativeText) {
				return
			}
			if Wait(ctx, pause) != nil {
				return
			}

			// Phase 3: translation. Target text stays the primary display.
			if !emit(PhaseNative, line.TargetText, line.NativeText) {
				return
			}
			if s.nativeMuted(sc.NativeLang) {
				if Wait(ctx, s.readingEstimate(line.NativeText)) != nil {
					return
				}
			} else {
				if _, err := s.driver.Speak(ctx, line.NativeText, sc.NativeLang, voice.DefaultRate); err != nil {
					errs <- err
					return
				}
			}
			if ctx.Err() != nil {
				return
			}

			// Phase 4: fixed short buffer before repetition.
			if !emit(PhaseGap, "", "") {
				return
			}
			if Wait(ctx, gap) != nil {
				return
			}

			// Phase 5: repeat the target phrase. This duration does not feed
			// pacing; only the phase-1 measurement does.
			if !emit(PhaseRepeat, line.TargetText, line.NativeText) {
				return
			}
			if _, err := s.driver.Speak(ctx, line.TargetText, sc.TargetLang, rate); err != nil {
				errs <- err
				return
			}
			if ctx.Err() != nil {
				return
			}

			// Phase 6: second practice pause, same length as phase 2.
			if !emit(PhasePause, line.TargetText, line.NativeText) {
				return
			}
			if Wait(ctx, pause) != nil {
				return
			}
		}
	}()

	return statuses, errs
}

// nativeMuted reports whether the native language's translation is displayed
// silently instead of spoken. Tag-driven product policy: the default system
// voices for the listed languages were judged too robotic to help.
func (s *Sequencer) nativeMuted(nativeLang string) bool {
	subtag := voice.PrimarySubtag(nativeLang)
	for _, muted := range s.cfg.MutedNativeLangs {
		if subtag == voice.PrimarySubtag(muted) {
			return true
		}
	}
	return false
}

// readingEstimate approximates how long a learner needs to read a silent
// translation, with the same floor as the practice pause.
func (s *Sequencer) readingEstimate(text string) time.Duration {
	est := time.Duration(utf8.RuneCountInString(text)*s.cfg.ReadingMSPerChar) * time.Millisecond
	if floor := time.Duration(s.cfg.MinPauseMS) * time.Millisecond; est < floor {
		return floor
	}
	return est
}

// practicePause scales the measured speech duration by the line's multiplier,
// never dropping below the floor so measurement glitches still leave room to
// speak.
func practicePause(measured time.Duration, multiplier float64, floor time.Duration) time.Duration {
	pause := time.Duration(float64(measured) * multiplier)
	if pause < floor {
		return floor
	}
	return pause
}
