package speech

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"
)

// MockEngine simulates synthesis by sleeping in proportion to text length.
// Used for tests and for running the daemon without a real TTS backend.
type MockEngine struct {
	mu         sync.Mutex
	voices     []Voice
	perRune    time.Duration
	interrupts []chan struct{}
	spoken     []Utterance
	nextErr    error
}

// NewMockEngine returns a mock with the given voice list. perRune scales the
// simulated duration of each utterance; zero means near-instant synthesis.
func NewMockEngine(voices []Voice, perRune time.Duration) *MockEngine {
	return &MockEngine{voices: voices, perRune: perRune}
}

func (m *MockEngine) Voices(ctx context.Context) ([]Voice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Voice(nil), m.voices...), nil
}

// SetVoices replaces the voice list, mimicking platforms where voices appear
// after startup.
func (m *MockEngine) SetVoices(voices []Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = append([]Voice(nil), voices...)
}

// FailNext makes the next Speak call return err instead of synthesizing.
func (m *MockEngine) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextErr = err
}

// Spoken returns every utterance submitted so far, in order.
func (m *MockEngine) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

func (m *MockEngine) Speak(ctx context.Context, utt Utterance) error {
	m.mu.Lock()
	if err := m.nextErr; err != nil {
		m.nextErr = nil
		m.mu.Unlock()
		return err
	}
	m.spoken = append(m.spoken, utt)
	interrupt := make(chan struct{})
	m.interrupts = append(m.interrupts, interrupt)
	m.mu.Unlock()

	d := time.Duration(utf8.RuneCountInString(utt.Text)) * m.perRune
	if utt.Rate > 0 {
		d = time.Duration(float64(d) / utt.Rate)
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ErrInterrupted
	case <-interrupt:
		return ErrInterrupted
	case <-timer.C:
		return nil
	}
}

func (m *MockEngine) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.interrupts {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
	m.interrupts = nil
}
