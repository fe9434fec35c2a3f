package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/shadowdrill/drill-core/internal/speech"
)

// Level is a CEFR proficiency band. Lower bands get slower speech.
type Level string

const (
	LevelA0A1 Level = "A0-A1"
	LevelA2   Level = "A2"
	LevelB1   Level = "B1"
	LevelB2   Level = "B2"
	LevelC1C2 Level = "C1-C2"
)

// DefaultRate is used for unknown levels and for speech that carries no
// level, such as native-language translations.
const DefaultRate = 0.9

// RateForLevel maps a proficiency level to a speech-rate multiplier.
// Unknown levels fall back to the default rate.
func RateForLevel(level Level) float64 {
	switch level {
	case LevelA0A1:
		return 0.75
	case LevelA2:
		return 0.82
	case LevelB1:
		return 0.9
	case LevelB2:
		return 0.95
	case LevelC1C2:
		return 1.0
	default:
		return DefaultRate
	}
}

// Quality signals summed over a voice's display name. Neural-class voices
// outrank vendor names, which outrank the flat on-device bonus.
var qualityKeywords = []struct {
	keyword string
	points  int
}{
	{"neural", 100},
	{"enhanced", 80},
	{"premium", 80},
	{"natural", 70},
	{"google", 60},
	{"microsoft", 50},
	{"apple", 40},
}

const localBonus = 10

// Score rates a voice by quality indicators in its name. Higher is better.
func Score(v speech.Voice) int {
	name := strings.ToLower(v.Name)
	score := 0
	for _, kw := range qualityKeywords {
		if strings.Contains(name, kw.keyword) {
			score += kw.points
		}
	}
	if v.Local {
		score += localBonus
	}
	return score
}

// PrimarySubtag extracts the primary language subtag from a BCP-47 tag,
// lowercased: "nl-NL" -> "nl".
func PrimarySubtag(lang string) string {
	if i := strings.IndexByte(lang, '-'); i >= 0 {
		lang = lang[:i]
	}
	return strings.ToLower(lang)
}

// Selector picks the best available voice per language and caches the choice
// for the process lifetime. The cache is the only shared state; Invalidate
// drops it wholesale for platforms whose voice lists populate late.
type Selector struct {
	engine speech.Engine
	log    *slog.Logger

	mu    sync.RWMutex
	cache map[string]speech.Voice
}

func NewSelector(engine speech.Engine, log *slog.Logger) *Selector {
	return &Selector{
		engine: engine,
		log:    log.With(slog.String("component", "voice-selector")),
		cache:  make(map[string]speech.Voice),
	}
}

// Best returns the highest-scoring voice whose language tag equals or shares
// the primary subtag with lang. The second return is false when no voice
// matches; callers fall back to the engine's default voice, this is not an
// error.
func (s *Selector) Best(ctx context.Context, lang string) (speech.Voice, bool) {
	s.mu.RLock()
	cached, ok := s.cache[lang]
	s.mu.RUnlock()
	if ok {
		return cached, true
	}

	voices, err := s.engine.Voices(ctx)
	if err != nil {
		s.log.Warn("voice enumeration failed", slog.String("error", err.Error()))
		return speech.Voice{}, false
	}

	prefix := PrimarySubtag(lang)
	want := strings.ToLower(lang)

	var best speech.Voice
	bestScore := -1
	candidates := 0
	for _, v := range voices {
		vl := strings.ToLower(v.Lang)
		if vl != want && !strings.HasPrefix(vl, prefix+"-") {
			continue
		}
		candidates++
		// Strictly-greater keeps original list order on ties.
		if sc := Score(v); sc > bestScore {
			best = v
			bestScore = sc
		}
	}
	if candidates == 0 {
		return speech.Voice{}, false
	}

	s.mu.Lock()
	s.cache[lang] = best
	s.mu.Unlock()

	s.log.Debug("selected voice",
		slog.String("lang", lang),
		slog.String("voice", best.Name),
		slog.Int("score", bestScore),
		slog.Int("candidates", candidates))
	return best, true
}

// Invalidate drops all cached selections.
func (s *Selector) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]speech.Voice)
	s.mu.Unlock()
}
