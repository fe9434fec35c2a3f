package scenario

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	MinPauseMultiplier = 0.5
	MaxPauseMultiplier = 3.0
)

// DialogueLine is one turn of a scripted dialogue. The line's position in the
// scenario is authoritative; ID is a display hint only.
type DialogueLine struct {
	ID              int     `json:"id" yaml:"id"`
	TargetText      string  `json:"target_text" yaml:"target_text"`
	NativeText      string  `json:"native_text" yaml:"native_text"`
	PauseMultiplier float64 `json:"pause_multiplier" yaml:"pause_multiplier"`
}

// Scenario is an immutable bilingual dialogue handed to the playback engine.
// TargetLang is spoken aloud; NativeLang is displayed and, depending on
// policy, spoken or silently estimated.
type Scenario struct {
	Title      string         `json:"title" yaml:"title"`
	TargetLang string         `json:"target_lang" yaml:"target_lang"`
	NativeLang string         `json:"native_lang" yaml:"native_lang"`
	Lines      []DialogueLine `json:"lines" yaml:"lines"`
}

// Parse decodes and validates a scenario from JSON.
func Parse(data []byte) (Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("decode scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return sc, err
	}
	return sc, nil
}

// Validate checks the invariants a generated or hand-authored scenario must
// hold before playback. Line count itself is unconstrained; the sequencer
// accepts any non-negative length.
func (s Scenario) Validate() error {
	if strings.TrimSpace(s.TargetLang) == "" {
		return fmt.Errorf("scenario %q: target_lang must not be empty", s.Title)
	}
	if strings.TrimSpace(s.NativeLang) == "" {
		return fmt.Errorf("scenario %q: native_lang must not be empty", s.Title)
	}
	for i, line := range s.Lines {
		if strings.TrimSpace(line.TargetText) == "" {
			return fmt.Errorf("scenario %q: line %d: target_text must not be empty", s.Title, i)
		}
		if line.PauseMultiplier < MinPauseMultiplier || line.PauseMultiplier > MaxPauseMultiplier {
			return fmt.Errorf("scenario %q: line %d: pause_multiplier %.2f out of range [%.1f, %.1f]",
				s.Title, i, line.PauseMultiplier, MinPauseMultiplier, MaxPauseMultiplier)
		}
	}
	return nil
}
