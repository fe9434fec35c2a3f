package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shadowdrill/drill-core/internal/speech"
	"github.com/shadowdrill/drill-core/internal/voice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SynthesisError wraps a genuine engine failure. Interruptions never produce
// one; they resolve as a zero-duration success.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed: %v", e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// IsSynthesisError reports whether err is a genuine synthesis failure.
func IsSynthesisError(err error) bool {
	var se *SynthesisError
	return errors.As(err, &se)
}

// Driver wraps single synthesis calls: it selects a voice, measures the
// wall-clock duration of the utterance, and absorbs interruptions.
type Driver struct {
	engine   speech.Engine
	selector *voice.Selector
	log      *slog.Logger
	clock    func() time.Time

	uttDuration metric.Float64Histogram
}

func NewDriver(engine speech.Engine, selector *voice.Selector, log *slog.Logger) *Driver {
	d := &Driver{
		engine:   engine,
		selector: selector,
		log:      log.With(slog.String("component", "utterance-driver")),
		clock:    time.Now,
	}
	meter := otel.Meter("github.com/shadowdrill/drill-core/playback")
	hist, err := meter.Float64Histogram("drill.utterance.duration_ms",
		metric.WithDescription("Wall-clock duration of synthesized utterances"))
	if err != nil {
		d.log.Warn("failed to initialize utterance metrics", slog.String("error", err.Error()))
	} else {
		d.uttDuration = hist
	}
	return d
}

// Speak synthesizes text in lang at the given rate and returns the measured
// duration. An interrupted or cancelled utterance returns (0, nil): stopping
// playback is never an error of the driver. Any other engine failure comes
// back as a *SynthesisError.
func (d *Driver) Speak(ctx context.Context, text, lang string, rate float64) (time.Duration, error) {
	utt := speech.Utterance{
		Text:   text,
		Lang:   lang,
		Rate:   rate,
		Pitch:  1.0,
		Volume: 1.0,
	}
	if v, ok := d.selector.Best(ctx, lang); ok {
		utt.Voice = v.Name
	}

	start := d.clock()
	err := d.engine.Speak(ctx, utt)
	elapsed := d.clock().Sub(start)

	if err != nil {
		if errors.Is(err, speech.ErrInterrupted) || errors.Is(err, context.Canceled) {
			return 0, nil
		}
		return 0, &SynthesisError{Err: err}
	}

	if d.uttDuration != nil {
		d.uttDuration.Record(ctx, float64(elapsed.Milliseconds()),
			metric.WithAttributes(attribute.String("lang", lang)))
	}
	return elapsed, nil
}
