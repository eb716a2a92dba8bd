package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"kisanmitra/internal/chat"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/models"
	"kisanmitra/internal/voice"
)

const helpText = `Commands:
  /lang <en|hi|te>   change the reply language
  /suggest <n>       send suggestion n from the last reply
  /voice             toggle speech input
  /speak             toggle reading replies aloud
  /history           print the conversation
  /quit              leave
Anything else is sent as a message.`

type repl struct {
	session   *chat.Session
	voice     *voice.Adapter
	out       io.Writer
	log       *logger.Logger
	autoSpeak bool

	voiceNoticeShown bool
}

// handle processes one input line and reports whether the loop should continue.
func (r *repl) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		r.session.SetInput(line)
		r.submit(ctx)
		return true
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit", "/exit":
		return false
	case "/help":
		fmt.Fprintln(r.out, helpText)
	case "/lang":
		r.setLanguage(arg)
	case "/suggest":
		r.selectSuggestion(ctx, arg)
	case "/voice":
		r.toggleVoice()
	case "/speak":
		r.autoSpeak = !r.autoSpeak
		state := "off"
		if r.autoSpeak {
			state = "on"
		}
		fmt.Fprintf(r.out, "reading replies aloud: %s\n", state)
	case "/history":
		for turn := range r.session.Turns() {
			r.printTurn(turn)
		}
	default:
		fmt.Fprintf(r.out, "unknown command %s, try /help\n", cmd)
	}
	return true
}

func (r *repl) setLanguage(code string) {
	if code == "" {
		fmt.Fprintf(r.out, "current language: %s\n", r.session.Language().Name())
		return
	}
	tag := lang.Parse(code)
	if tag == lang.Default && !strings.HasPrefix(strings.ToLower(code), "en") {
		fmt.Fprintf(r.out, "unsupported language %q, using %s\n", code, tag.Name())
	}
	r.session.SetLanguage(tag)
	fmt.Fprintf(r.out, "language: %s\n", tag.Name())
}

func (r *repl) selectSuggestion(ctx context.Context, arg string) {
	suggestions := r.session.Suggestions()
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(suggestions) {
		fmt.Fprintf(r.out, "pick a suggestion between 1 and %d\n", len(suggestions))
		return
	}
	r.send(ctx, func() (chat.Exchange, error) {
		return r.session.SelectSuggestion(ctx, suggestions[n-1])
	})
}

func (r *repl) submit(ctx context.Context) {
	r.send(ctx, func() (chat.Exchange, error) { return r.session.Submit(ctx) })
}

func (r *repl) send(ctx context.Context, fn func() (chat.Exchange, error)) {
	ex, err := fn()
	switch {
	case errors.Is(err, chat.ErrEmptyInput):
		return
	case errors.Is(err, chat.ErrBusy):
		fmt.Fprintln(r.out, "still waiting for the previous reply")
		return
	case err != nil:
		fmt.Fprintf(r.out, "error: %v\n", err)
		return
	}
	if ex.User.IsTranslated {
		fmt.Fprintf(r.out, "(sent as: %s)\n", ex.User.Content)
	}
	r.printTurn(ex.Reply)
	if r.autoSpeak {
		if err := r.voice.Speak(ex.Reply.Content); err != nil {
			r.log.Debug("speak failed", zap.Error(err))
		}
	}
}

func (r *repl) toggleVoice() {
	err := r.voice.Toggle()
	if errors.Is(err, voice.ErrUnsupported) {
		if !r.voiceNoticeShown {
			fmt.Fprintln(r.out, lang.VoiceUnsupported(r.session.Language()))
			r.voiceNoticeShown = true
		}
		return
	}
	fmt.Fprintf(r.out, "voice: %s\n", r.voice.State())
}

func (r *repl) printTurn(turn models.Turn) {
	who := "you"
	if turn.Role == models.RoleAssistant {
		who = "KisanMitra"
	}
	fmt.Fprintf(r.out, "[%s] %s:\n%s\n", turn.CreatedAt.Format("15:04"), who, turn.Content)
	for i, s := range turn.Suggestions {
		fmt.Fprintf(r.out, "  %d. %s\n", i+1, s)
	}
}
