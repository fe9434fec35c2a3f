package resume

import (
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/shadowdrill/drill-core/internal/scenario"
)

// Source identifies where a lesson's scenario came from. Each source has its
// own id scheme so progress survives regeneration of equivalent content.
type Source string

const (
	SourceCourse Source = "course"
	SourceAI     Source = "ai"
	SourceCustom Source = "custom"
)

// IDParams carries the addressing fields for ID. Only the fields relevant to
// the source need to be set.
type IDParams struct {
	CourseID string
	LessonID string
	Topic    string
	Level    string
	SavedID  string
	Scenario *scenario.Scenario
}

// ID derives the stable resume id for a lesson:
//   - course: course:<courseID>:<lessonID>
//   - ai:     ai:<savedID>, or ai:unsaved:<topic>:<level> for unsaved drafts
//   - custom: custom:<savedID>, or custom:unsaved:<hash> keyed by content
func ID(source Source, p IDParams) string {
	switch source {
	case SourceCourse:
		if p.CourseID != "" && p.LessonID != "" {
			return fmt.Sprintf("course:%s:%s", p.CourseID, p.LessonID)
		}
	case SourceAI:
		if p.SavedID != "" {
			return "ai:" + p.SavedID
		}
		level := p.Level
		if level == "" {
			level = "A0-A1"
		}
		return fmt.Sprintf("ai:unsaved:%s:%s", sanitizeTopic(p.Topic), level)
	case SourceCustom:
		if p.SavedID != "" {
			return "custom:" + p.SavedID
		}
		return "custom:unsaved:" + hashScenario(p.Scenario)
	}
	return "unknown"
}

func sanitizeTopic(topic string) string {
	var b strings.Builder
	for _, r := range topic {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 40 {
			break
		}
	}
	return b.String()
}

// hashScenario fingerprints a scenario by title, line count and first line;
// enough to tell hand-pasted texts apart without hashing the whole dialogue.
func hashScenario(sc *scenario.Scenario) string {
	if sc == nil {
		return "empty"
	}
	first := ""
	if len(sc.Lines) > 0 {
		first = sc.Lines[0].TargetText
	}
	h := fnv.New32a()
	fmt.Fprintf(h, "%s:%d:%s", sc.Title, len(sc.Lines), first)
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
