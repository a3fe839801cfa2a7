package speech

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecSink drives an external synthesizer process per utterance. The
// command receives the utterance text on stdin. A second, optional command
// handles braille output the same way.
type ExecSink struct {
	speakCmd   []string
	brailleCmd []string
	logger     *slog.Logger

	mu          sync.Mutex
	initialized bool
	unavailable bool
	current     *exec.Cmd
}

// NewExecSink parses the speak and braille command lines. The braille
// command may be empty, in which case DisplayBraille is a no-op.
func NewExecSink(speakCommand, brailleCommand string, log *slog.Logger) (*ExecSink, error) {
	parser := shellwords.NewParser()
	speakArgs, err := parser.Parse(speakCommand)
	if err != nil {
		return nil, fmt.Errorf("parse speak command: %w", err)
	}
	if len(speakArgs) == 0 {
		return nil, fmt.Errorf("speak command empty")
	}
	var brailleArgs []string
	if strings.TrimSpace(brailleCommand) != "" {
		brailleArgs, err = parser.Parse(brailleCommand)
		if err != nil {
			return nil, fmt.Errorf("parse braille command: %w", err)
		}
	}
	return &ExecSink{
		speakCmd:   speakArgs,
		brailleCmd: brailleArgs,
		logger:     log.With(slog.String("component", "speech-sink")),
	}, nil
}

// Initialize resolves the synthesizer binary once and caches the result.
// An unavailable backend is logged a single time; every later call returns
// false without re-probing.
func (s *ExecSink) Initialize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return !s.unavailable
	}
	s.initialized = true
	if _, err := exec.LookPath(s.speakCmd[0]); err != nil {
		s.unavailable = true
		s.logger.Error("speech backend unavailable",
			slog.String("command", s.speakCmd[0]),
			slog.String("error", err.Error()))
		return false
	}
	if len(s.brailleCmd) > 0 {
		if _, err := exec.LookPath(s.brailleCmd[0]); err != nil {
			// Braille degrades independently of speech.
			s.logger.Warn("braille backend unavailable",
				slog.String("command", s.brailleCmd[0]),
				slog.String("error", err.Error()))
			s.brailleCmd = nil
		}
	}
	return true
}

func (s *ExecSink) Speak(text string, interrupt bool) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.Initialize() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if interrupt {
		s.stopLocked()
	}
	cmd := exec.Command(s.speakCmd[0], s.speakCmd[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start speech command: %w", err)
	}
	s.current = cmd
	go func() {
		_ = cmd.Wait()
		s.mu.Lock()
		if s.current == cmd {
			s.current = nil
		}
		s.mu.Unlock()
	}()
	return nil
}

func (s *ExecSink) DisplayBraille(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if !s.Initialize() {
		return nil
	}
	s.mu.Lock()
	args := s.brailleCmd
	s.mu.Unlock()
	if len(args) == 0 {
		return nil
	}
	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(text)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("braille command: %w", err)
	}
	return nil
}

func (s *ExecSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *ExecSink) stopLocked() {
	if s.current != nil && s.current.Process != nil {
		_ = s.current.Process.Kill()
		s.current = nil
	}
}

func (s *ExecSink) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized && !s.unavailable
}
