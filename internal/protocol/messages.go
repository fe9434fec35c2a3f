package protocol

import (
	"time"

	"github.com/shadowdrill/drill-core/internal/scenario"
)

// PlayRequest asks the session service to start drilling a scenario.
type PlayRequest struct {
	SessionID  string            `json:"session_id,omitempty"`
	ResumeID   string            `json:"resume_id,omitempty"`
	Scenario   scenario.Scenario `json:"scenario"`
	Level      string            `json:"level,omitempty"`
	StartIndex int               `json:"start_index,omitempty"`
}

// StopRequest stops an active session.
type StopRequest struct {
	SessionID string `json:"session_id"`
}

// PlaybackStatus is one phase transition, broadcast while a session runs.
type PlaybackStatus struct {
	SessionID  string    `json:"session_id"`
	LineIndex  int       `json:"line_index"`
	TotalLines int       `json:"total_lines"`
	Phase      string    `json:"phase"`
	Text       string    `json:"text"`
	NativeText string    `json:"native_text,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// SessionDone reports how a session ended. Completed is true only on natural
// exhaustion; stopped or failed sessions carry the last observed line index
// so playback can resume there.
type SessionDone struct {
	SessionID     string    `json:"session_id"`
	ResumeID      string    `json:"resume_id,omitempty"`
	Completed     bool      `json:"completed"`
	LastLineIndex int       `json:"last_line_index"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	SubjectSessionPlay    = "drill.session.play"
	SubjectSessionStop    = "drill.session.stop"
	SubjectPlaybackStatus = "drill.playback.status"
	SubjectPlaybackDone   = "drill.playback.done"
)
