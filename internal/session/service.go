package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/shadowdrill/drill-core/internal/bus"
	"github.com/shadowdrill/drill-core/internal/config"
	"github.com/shadowdrill/drill-core/internal/playback"
	"github.com/shadowdrill/drill-core/internal/protocol"
	"github.com/shadowdrill/drill-core/internal/resume"
	"github.com/shadowdrill/drill-core/internal/speech"
	"github.com/shadowdrill/drill-core/internal/voice"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Service exposes the playback engine over the bus: it accepts play/stop
// requests, runs one Controller per session, broadcasts status events, and
// records resume progress when sessions end.
type Service struct {
	cfg    config.SessionConfig
	bus    *bus.Client
	seq    *playback.Sequencer
	engine speech.Engine
	store  *resume.Store
	logger *slog.Logger

	subPlay *nats.Subscription
	subStop *nats.Subscription
	ctx     context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*activeSession

	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	sessionsStopped   metric.Int64Counter
}

type activeSession struct {
	id       string
	resumeID string
	ctrl     *playback.Controller
	finished atomic.Bool
}

func NewService(parent context.Context, cfg config.SessionConfig, busClient *bus.Client, seq *playback.Sequencer, engine speech.Engine, store *resume.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	s := &Service{
		cfg:      cfg,
		bus:      busClient,
		seq:      seq,
		engine:   engine,
		store:    store,
		logger:   log.With(slog.String("component", "session-service")),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*activeSession),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/shadowdrill/drill-core/session")
	var err error
	s.sessionsStarted, err = meter.Int64Counter("drill.sessions.started",
		metric.WithDescription("Playback sessions started"))
	if err == nil {
		s.sessionsCompleted, err = meter.Int64Counter("drill.sessions.completed",
			metric.WithDescription("Playback sessions finished to exhaustion"))
	}
	if err == nil {
		s.sessionsStopped, err = meter.Int64Counter("drill.sessions.stopped",
			metric.WithDescription("Playback sessions stopped before the end"))
	}
	if err != nil {
		s.logger.Warn("failed to initialize session metrics", slog.String("error", err.Error()))
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subPlay, err := s.bus.Conn().Subscribe(protocol.SubjectSessionPlay, s.handlePlay)
	if err != nil {
		return err
	}
	s.subPlay = subPlay

	subStop, err := s.bus.Conn().Subscribe(protocol.SubjectSessionStop, s.handleStop)
	if err != nil {
		s.subPlay.Drain()
		return err
	}
	s.subStop = subStop
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subPlay != nil {
		_ = s.subPlay.Drain()
	}
	if s.subStop != nil {
		_ = s.subStop.Drain()
	}

	s.mu.Lock()
	active := make([]*activeSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		active = append(active, sess)
	}
	s.mu.Unlock()
	// Stop blocks until each playback goroutine has wound down.
	for _, sess := range active {
		sess.ctrl.Stop()
	}
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.subPlay != nil && s.subStop != nil)
}

func (s *Service) handlePlay(msg *nats.Msg) {
	var req protocol.PlayRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode play request", slogError(err))
		return
	}
	if err := req.Scenario.Validate(); err != nil {
		s.logger.Warn("rejected invalid scenario", slogError(err))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	if existing, ok := s.sessions[sessionID]; ok && existing.ctrl.Playing() {
		s.mu.Unlock()
		s.logger.Debug("session already playing, ignoring", slog.String("session_id", sessionID))
		return
	}

	level := voice.Level(req.Level)
	if req.Level == "" {
		level = voice.Level(s.cfg.DefaultLevel)
	}

	sess := &activeSession{id: sessionID, resumeID: req.ResumeID}
	sess.ctrl = playback.NewController(s.seq, s.engine, playback.Hooks{
		OnStatus:   func(st playback.Status) { s.publishStatus(sess, st) },
		OnComplete: func() { s.finishSession(sess, true, "") },
		OnError:    func(err error) { s.finishSession(sess, false, err.Error()) },
	}, s.logger)
	s.sessions[sessionID] = sess
	s.mu.Unlock()

	startIndex := req.StartIndex
	if startIndex < 0 {
		// Negative start index means "resume where this lesson left off".
		startIndex = 0
		if req.ResumeID != "" {
			if p, err := s.store.Get(s.ctx, req.ResumeID); err == nil {
				startIndex = p.LastLineIndex
			}
		}
	}

	if s.sessionsStarted != nil {
		s.sessionsStarted.Add(s.ctx, 1)
	}
	s.logger.Info("starting playback session",
		slog.String("session_id", sessionID),
		slog.String("scenario", req.Scenario.Title),
		slog.Int("start_index", startIndex),
		slog.Int("lines", len(req.Scenario.Lines)))

	sess.ctrl.Start(s.ctx, req.Scenario, level, startIndex)
}

func (s *Service) handleStop(msg *nats.Msg) {
	var req protocol.StopRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode stop request", slogError(err))
		return
	}

	s.mu.Lock()
	sess, ok := s.sessions[req.SessionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	sess.ctrl.Stop()
	if sess.finished.Swap(true) {
		// Completion or a synthesis failure beat the stop request.
		return
	}

	lastLine := sess.ctrl.LastLineIndex()
	s.removeSession(sess.id)
	if sess.resumeID != "" {
		if err := s.store.SetLastLineIndex(s.ctx, sess.resumeID, lastLine); err != nil {
			s.logger.Warn("failed to record resume index", slogError(err))
		}
	}
	if s.sessionsStopped != nil {
		s.sessionsStopped.Add(s.ctx, 1)
	}
	s.publishDone(sess, false, lastLine, "")
	s.logger.Info("stopped playback session",
		slog.String("session_id", sess.id),
		slog.Int("last_line_index", lastLine))
}

// finishSession handles the two sequencer-driven endings: natural exhaustion
// and synthesis failure. Runs on the playback goroutine.
func (s *Service) finishSession(sess *activeSession, completed bool, errText string) {
	if sess.finished.Swap(true) {
		return
	}
	lastLine := sess.ctrl.LastLineIndex()
	s.removeSession(sess.id)

	if sess.resumeID != "" {
		if completed {
			if _, err := s.store.MarkCompleted(s.ctx, sess.resumeID); err != nil {
				s.logger.Warn("failed to record completion", slogError(err))
			}
		} else {
			if err := s.store.SetLastLineIndex(s.ctx, sess.resumeID, lastLine); err != nil {
				s.logger.Warn("failed to record resume index", slogError(err))
			}
		}
	}
	if completed && s.sessionsCompleted != nil {
		s.sessionsCompleted.Add(s.ctx, 1)
	}
	s.publishDone(sess, completed, lastLine, errText)

	if errText != "" {
		s.logger.Warn("playback session failed",
			slog.String("session_id", sess.id),
			slog.String("error", errText))
	} else {
		s.logger.Info("playback session completed", slog.String("session_id", sess.id))
	}
}

func (s *Service) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *Service) publishStatus(sess *activeSession, st playback.Status) {
	status := protocol.PlaybackStatus{
		SessionID:  sess.id,
		LineIndex:  st.LineIndex,
		TotalLines: st.TotalLines,
		Phase:      string(st.Phase),
		Text:       st.Text,
		NativeText: st.NativeText,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectPlaybackStatus, status); err != nil {
		s.logger.Warn("failed to publish playback status", slogError(err))
	}
}

func (s *Service) publishDone(sess *activeSession, completed bool, lastLine int, errText string) {
	done := protocol.SessionDone{
		SessionID:     sess.id,
		ResumeID:      sess.resumeID,
		Completed:     completed,
		LastLineIndex: lastLine,
		Error:         errText,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectPlaybackDone, done); err != nil {
		s.logger.Warn("failed to publish session done", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
