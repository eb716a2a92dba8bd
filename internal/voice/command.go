package voice

import (
	"errors"
	"os/exec"
	"strconv"
	"sync"
)

// CommandSynthesizer speaks through an external TTS program such as espeak-ng.
// Only one utterance plays at a time.
type CommandSynthesizer struct {
	bin     string
	mu      sync.Mutex
	current *exec.Cmd
}

// FindCommandSynthesizer returns a synthesizer for the first TTS program
// found on PATH, or nil when none is installed.
func FindCommandSynthesizer() *CommandSynthesizer {
	for _, bin := range []string{"espeak-ng", "espeak"} {
		if path, err := exec.LookPath(bin); err == nil {
			return &CommandSynthesizer{bin: path}
		}
	}
	return nil
}

// Speak starts playback and returns without waiting for it to finish.
func (s *CommandSynthesizer) Speak(u Utterance) error {
	if s == nil || s.bin == "" {
		return ErrUnsupported
	}
	if u.Text == "" {
		return errors.New("voice: empty utterance")
	}
	base, _ := u.Locale.Base()
	// espeak measures speed in words per minute; 175 is its default.
	wpm := int(175 * u.Rate)
	if wpm <= 0 {
		wpm = 175
	}
	cmd := exec.Command(s.bin, "-v", base.String(), "-s", strconv.Itoa(wpm), u.Text)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := cmd.Start(); err != nil {
		return err
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

// Cancel stops the utterance in progress, if any.
func (s *CommandSynthesizer) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Process != nil {
		_ = s.current.Process.Kill()
		s.current = nil
	}
}
