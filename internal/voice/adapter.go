// Package voice wraps platform speech recognition and synthesis behind a
// two-state machine (Idle, Listening) with a timeout-based auto-stop.
package voice

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
)

// DefaultListenTimeout stops listening when no result arrives in time.
const DefaultListenTimeout = 5 * time.Second

// SpeechRate is the playback rate used for assistant replies.
const SpeechRate = 0.9

// ErrUnsupported is returned when the platform lacks the capability.
var ErrUnsupported = errors.New("voice: capability not supported")

// State of the recognizer side of the adapter.
type State int

const (
	Idle State = iota
	Listening
)

func (s State) String() string {
	if s == Listening {
		return "listening"
	}
	return "idle"
}

// RecognizerConfig configures a single recognition.
type RecognizerConfig struct {
	Locale         language.Tag
	Continuous     bool
	InterimResults bool
}

// Recognizer is the platform speech-to-text engine. Results and failures are
// reported back through Adapter.Result and Adapter.Fail, possibly from inside Start.
type Recognizer interface {
	Start(cfg RecognizerConfig) error
	Stop()
}

// Utterance is one piece of text to speak.
type Utterance struct {
	Text   string
	Locale language.Tag
	Rate   float64
}

// Synthesizer is the platform text-to-speech engine.
type Synthesizer interface {
	Speak(u Utterance) error
	Cancel()
}

// TranscriptSink receives completed transcripts, typically the input box.
type TranscriptSink interface {
	AppendTranscript(text string)
}

// Timer is the part of *time.Timer the adapter needs.
type Timer interface {
	Stop() bool
}

// Adapter owns the recognizer/synthesizer handles for one chat session.
type Adapter struct {
	mu         sync.Mutex
	state      State
	generation uint64
	timer      Timer

	recognizer  Recognizer
	synthesizer Synthesizer
	sink        TranscriptSink
	language    func() lang.Tag
	timeout     time.Duration
	afterFunc   func(time.Duration, func()) Timer
	log         *logger.Logger
}

// Option customises an Adapter.
type Option func(*Adapter)

// WithRecognizer installs a speech recognizer.
func WithRecognizer(r Recognizer) Option { return func(a *Adapter) { a.recognizer = r } }

// WithSynthesizer installs a speech synthesizer.
func WithSynthesizer(s Synthesizer) Option { return func(a *Adapter) { a.synthesizer = s } }

// WithTimeout overrides DefaultListenTimeout.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc, mainly for tests.
func WithAfterFunc(f func(time.Duration, func()) Timer) Option {
	return func(a *Adapter) {
		if f != nil {
			a.afterFunc = f
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(a *Adapter) { a.log = logger.OrNop(l).Named("voice") }
}

// NewAdapter builds an adapter delivering transcripts to sink. language is
// consulted on every start/speak so locale follows the UI language.
func NewAdapter(sink TranscriptSink, language func() lang.Tag, opts ...Option) *Adapter {
	a := &Adapter{
		sink:     sink,
		language: language,
		timeout:  DefaultListenTimeout,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		log: logger.Nop(),
	}
	if a.language == nil {
		a.language = func() lang.Tag { return lang.Default }
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current recognizer state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CanListen reports whether speech input is available.
func (a *Adapter) CanListen() bool { return a.recognizer != nil }

// CanSpeak reports whether speech output is available.
func (a *Adapter) CanSpeak() bool { return a.synthesizer != nil }

// Start begins listening. It returns ErrUnsupported without changing state
// when no recognizer exists. A recognizer that refuses to start is treated
// as a silent cancellation.
func (a *Adapter) Start() error {
	if a.recognizer == nil {
		return ErrUnsupported
	}
	a.mu.Lock()
	if a.state == Listening {
		a.mu.Unlock()
		return nil
	}
	a.state = Listening
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	// The recognizer may call back into Result or Fail before returning.
	err := a.recognizer.Start(RecognizerConfig{Locale: a.language().Locale()})

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Listening || a.generation != gen {
		return nil
	}
	if err != nil {
		a.log.Debug("recognizer failed to start", zap.Error(err))
		a.resetLocked()
		return nil
	}
	a.timer = a.afterFunc(a.timeout, func() { a.expire(gen) })
	return nil
}

// Toggle starts listening when idle and stops when listening.
func (a *Adapter) Toggle() error {
	if a.State() == Listening {
		a.Stop()
		return nil
	}
	return a.Start()
}

// Stop cancels listening at the user's request.
func (a *Adapter) Stop() {
	a.mu.Lock()
	if a.state != Listening {
		a.mu.Unlock()
		return
	}
	a.resetLocked()
	a.mu.Unlock()
	a.recognizer.Stop()
}

// Result delivers a final transcript. It is ignored unless listening.
func (a *Adapter) Result(transcript string) {
	a.mu.Lock()
	if a.state != Listening {
		a.mu.Unlock()
		return
	}
	a.resetLocked()
	a.mu.Unlock()

	if a.sink != nil && transcript != "" {
		a.sink.AppendTranscript(transcript)
	}
}

// Fail reports a recognizer error; the adapter silently returns to Idle.
func (a *Adapter) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Listening {
		return
	}
	a.log.Debug("recognizer error", zap.Error(err))
	a.resetLocked()
}

func (a *Adapter) expire(gen uint64) {
	a.mu.Lock()
	if a.state != Listening || a.generation != gen {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	a.state = Idle
	a.mu.Unlock()
	a.log.Debug("listening timed out")
	a.recognizer.Stop()
}

func (a *Adapter) resetLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.state = Idle
}

// Speak cancels any current utterance and speaks text in the UI locale.
func (a *Adapter) Speak(text string) error {
	if a.synthesizer == nil {
		return ErrUnsupported
	}
	a.synthesizer.Cancel()
	return a.synthesizer.Speak(Utterance{
		Text:   text,
		Locale: a.language().Locale(),
		Rate:   SpeechRate,
	})
}
