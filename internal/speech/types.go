package speech

import (
	"context"
	"errors"
)

// ErrInterrupted reports that an utterance was cut off by a deliberate stop
// request. It is the expected outcome of CancelAll or context cancellation
// racing an in-flight Speak, never a genuine synthesis failure.
var ErrInterrupted = errors.New("speech: utterance interrupted")

// Voice describes one synthesis voice offered by the platform engine.
type Voice struct {
	Name  string `json:"name"`
	Lang  string `json:"lang"`
	Local bool   `json:"local"`
}

// Utterance contains parameters for a single synthesis call. An empty Voice
// means the engine's default voice for Lang.
type Utterance struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  string  `json:"voice"`
	Rate   float64 `json:"rate"`
	Pitch  float64 `json:"pitch"`
	Volume float64 `json:"volume"`
}

// Engine is the entire contract the playback core needs from a host TTS
// engine: enumerate voices, synthesize one utterance to completion, and cut
// off everything in flight. Any engine satisfying it is substitutable.
type Engine interface {
	// Voices lists the voices currently available. Some platforms populate
	// the list asynchronously after startup, so results may grow over time.
	Voices(ctx context.Context) ([]Voice, error)

	// Speak synthesizes one utterance and blocks until the engine reports it
	// finished. Returns ErrInterrupted when the utterance was cut off by
	// CancelAll or context cancellation.
	Speak(ctx context.Context, utt Utterance) error

	// CancelAll immediately stops all pending and active synthesis.
	CancelAll()
}
