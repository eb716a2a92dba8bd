// Package chat ties the pipeline together for one UI session: input box,
// language context, the loading gate and the transcript.
package chat

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync"

	"go.uber.org/zap"

	"kisanmitra/internal/conversation"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/models"
	"kisanmitra/internal/normalize"
	"kisanmitra/internal/suggest"
)

var (
	// ErrEmptyInput rejects blank submissions before any work is done.
	ErrEmptyInput = errors.New("chat: empty input")
	// ErrBusy rejects a submission while a reply is pending.
	ErrBusy = errors.New("chat: reply pending")
)

// Completer sends a normalised message and appends exactly one assistant
// turn to the session's store. *completion.Client satisfies it.
type Completer interface {
	Send(ctx context.Context, text string, ui, detected lang.Tag) (models.Turn, error)
}

// Exchange is the pair of turns produced by one send.
type Exchange struct {
	User  models.Turn
	Reply models.Turn
}

// Session is one conversation. It is safe for concurrent use, but only one
// send runs at a time.
type Session struct {
	mu      sync.Mutex
	ui      lang.Tag
	loading bool
	input   string

	store      *conversation.Store
	normalizer *normalize.Normalizer
	completer  Completer
	log        *logger.Logger
}

// Option customises a Session.
type Option func(*Session)

// WithLanguage sets the starting UI language.
func WithLanguage(t lang.Tag) Option { return func(s *Session) { s.ui = t } }

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Session) { s.log = logger.OrNop(l).Named("chat") }
}

// NewSession starts a conversation on store and seeds it with the greeting.
// completer must append its replies to the same store.
func NewSession(store *conversation.Store, n *normalize.Normalizer, c Completer, opts ...Option) *Session {
	s := &Session{
		ui:         lang.Default,
		store:      store,
		normalizer: n,
		completer:  c,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.normalizer == nil {
		s.normalizer = normalize.New(nil, nil, s.log)
	}
	s.store.Append(models.Turn{
		Role:        models.RoleAssistant,
		Content:     lang.Greeting(s.ui),
		Suggestions: suggest.DefaultsFor(s.ui),
	})
	return s
}

// Language returns the UI language.
func (s *Session) Language() lang.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ui
}

// SetLanguage changes the UI language. Earlier turns are left as they are.
func (s *Session) SetLanguage(t lang.Tag) {
	s.mu.Lock()
	s.ui = t
	s.mu.Unlock()
	s.log.Debug("ui language changed", zap.String("ui_language", t.Code()))
}

// Loading reports whether a reply is pending.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Input returns the input box content.
func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// SetInput replaces the input box content.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// AppendTranscript adds recognised speech to the input box, space-joined.
// It never submits.
func (s *Session) AppendTranscript(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(s.input) == "" {
		s.input = text
		return
	}
	s.input = strings.TrimRight(s.input, " ") + " " + text
}

// CanSubmit mirrors the send control: enabled when idle with non-blank input.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.loading && strings.TrimSpace(s.input) != ""
}

// Submit sends the input box content and clears it. On ErrBusy or
// ErrEmptyInput the box is left untouched.
func (s *Session) Submit(ctx context.Context) (Exchange, error) {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	if text == "" {
		s.mu.Unlock()
		return Exchange{}, ErrEmptyInput
	}
	if s.loading {
		s.mu.Unlock()
		return Exchange{}, ErrBusy
	}
	s.loading = true
	s.input = ""
	ui := s.ui
	s.mu.Unlock()

	return s.run(ctx, text, ui), nil
}

// Send submits text directly, bypassing the input box.
func (s *Session) Send(ctx context.Context, text string) (Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Exchange{}, ErrEmptyInput
	}
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return Exchange{}, ErrBusy
	}
	s.loading = true
	ui := s.ui
	s.mu.Unlock()

	return s.run(ctx, text, ui), nil
}

// SelectSuggestion behaves exactly like typing suggestion and submitting it.
func (s *Session) SelectSuggestion(ctx context.Context, suggestion string) (Exchange, error) {
	return s.Send(ctx, suggestion)
}

// Suggestions returns the prompts attached to the latest assistant turn.
func (s *Session) Suggestions() []string {
	last, ok := s.store.Last()
	if !ok || last.Role != models.RoleAssistant {
		return nil
	}
	return last.Suggestions
}

// Turns iterates the transcript in order.
func (s *Session) Turns() iter.Seq[models.Turn] {
	return s.store.All()
}

func (s *Session) run(ctx context.Context, raw string, ui lang.Tag) Exchange {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	res := s.normalizer.Normalize(ctx, raw, ui)

	user := s.store.Append(models.Turn{
		Role:         models.RoleUser,
		Content:      res.Text,
		IsTranslated: res.Transformed && res.Text != raw,
	})

	reply, err := s.completer.Send(ctx, res.Text, ui, res.Detected)
	if err != nil {
		// The completer appended nothing; keep user and assistant turns paired.
		s.log.Warn("completion not attempted",
			zap.String("ui_language", ui.Code()),
			zap.Error(err))
		reply = s.store.Append(models.Turn{
			Role:    models.RoleAssistant,
			Content: lang.ErrorReply(ui),
		})
	}
	return Exchange{User: user, Reply: reply}
}
