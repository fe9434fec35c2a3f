package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// execEngine shells out to a helper process speaking a JSON-over-stdio
// protocol: one request object on stdin, one response object per line on
// stdout. This keeps platform TTS bindings (say, espeak wrappers, cloud
// clients) out of the daemon binary.
type execEngine struct {
	cmd []string

	mu     sync.Mutex
	active map[*exec.Cmd]struct{}
	killed map[*exec.Cmd]bool
}

type execRequest struct {
	Op     string  `json:"op"`
	Text   string  `json:"text,omitempty"`
	Lang   string  `json:"lang,omitempty"`
	Voice  string  `json:"voice,omitempty"`
	Rate   float64 `json:"rate,omitempty"`
	Pitch  float64 `json:"pitch,omitempty"`
	Volume float64 `json:"volume,omitempty"`
}

type execResponse struct {
	OK     bool    `json:"ok"`
	Reason string  `json:"reason,omitempty"`
	Voices []Voice `json:"voices,omitempty"`
}

// NewExecEngine builds an Engine from a helper command line.
func NewExecEngine(command string) (Engine, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse speech command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("speech command empty")
	}
	return &execEngine{
		cmd:    args,
		active: make(map[*exec.Cmd]struct{}),
		killed: make(map[*exec.Cmd]bool),
	}, nil
}

func (e *execEngine) Voices(ctx context.Context) ([]Voice, error) {
	resp, err := e.roundTrip(ctx, execRequest{Op: "voices"})
	if err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

func (e *execEngine) Speak(ctx context.Context, utt Utterance) error {
	resp, err := e.roundTrip(ctx, execRequest{
		Op:     "speak",
		Text:   utt.Text,
		Lang:   utt.Lang,
		Voice:  utt.Voice,
		Rate:   utt.Rate,
		Pitch:  utt.Pitch,
		Volume: utt.Volume,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ErrInterrupted
		}
		return err
	}
	if resp.OK {
		return nil
	}
	switch resp.Reason {
	case "interrupted", "canceled", "cancelled":
		return ErrInterrupted
	default:
		return fmt.Errorf("speech helper: %s", resp.Reason)
	}
}

func (e *execEngine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for cmd := range e.active {
		e.killed[cmd] = true
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

func (e *execEngine) roundTrip(ctx context.Context, req execRequest) (execResponse, error) {
	var resp execResponse

	data, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return resp, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return resp, err
	}
	if err := cmd.Start(); err != nil {
		return resp, err
	}

	e.mu.Lock()
	e.active[cmd] = struct{}{}
	e.mu.Unlock()
	wasKilled := func() bool {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.killed[cmd]
	}
	defer func() {
		e.mu.Lock()
		delete(e.active, cmd)
		delete(e.killed, cmd)
		e.mu.Unlock()
	}()

	if _, err := stdin.Write(data); err != nil {
		cmd.Wait()
		return resp, err
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	decoded := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			cmd.Wait()
			return resp, fmt.Errorf("decode speech helper response: %w", err)
		}
		decoded = true
		break
	}
	if err := cmd.Wait(); err != nil {
		// A killed helper is an interruption, not a failure.
		if ctx.Err() != nil || wasKilled() {
			return execResponse{Reason: "interrupted"}, nil
		}
		if !decoded {
			return resp, fmt.Errorf("speech helper: %w", err)
		}
	}
	if !decoded {
		if scanErr := scanner.Err(); scanErr != nil {
			return resp, scanErr
		}
		return resp, fmt.Errorf("speech helper produced no response")
	}
	return resp, nil
}
