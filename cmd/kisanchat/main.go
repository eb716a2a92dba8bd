// Command kisanchat is a terminal front end for the KisanMitra assistant.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"kisanmitra/internal/chat"
	"kisanmitra/internal/completion"
	"kisanmitra/internal/config"
	"kisanmitra/internal/conversation"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/normalize"
	"kisanmitra/internal/transliterate"
	"kisanmitra/internal/voice"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("KISANMITRA_CONFIG"), "path to config.json")
	backend := flag.String("backend", "", "completion service URL (overrides config)")
	language := flag.String("lang", "", "reply language: en, hi or te (overrides config)")
	speak := flag.Bool("speak", false, "read replies aloud when a speech synthesizer is installed")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	logg, err := logger.NewDevelopment(*logLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logg.Sync()

	clientCfg := config.ClientConfig{BackendURL: "http://localhost:5000", VoiceTimeout: 5}
	translitCfg := config.TransliterationConfig{}
	cfg, err := config.Load(*cfgPath)
	switch {
	case err == nil:
		clientCfg = cfg.Client
		translitCfg = cfg.Transliteration
	case errors.Is(err, fs.ErrNotExist):
		logg.Debug("no config file, using defaults")
	default:
		logg.Fatal("load config", zap.Error(err))
	}
	if *backend != "" {
		clientCfg.BackendURL = *backend
	}
	if *language != "" {
		clientCfg.Language = *language
	}
	speakReplies := *speak || clientCfg.Speak

	store := conversation.NewStore()
	translitOpts := []transliterate.Option{transliterate.WithLogger(logg)}
	if translitCfg.Timeout > 0 {
		translitOpts = append(translitOpts, transliterate.WithHTTPClient(&http.Client{
			Timeout: cfg.TransliterationTimeout(),
		}))
	}
	normalizer := normalize.New(transliterate.NewClient(translitCfg.Endpoint, translitOpts...), nil, logg)
	client := completion.NewClient(clientCfg.BackendURL, store, completion.WithLogger(logg))
	session := chat.NewSession(store, normalizer, client,
		chat.WithLanguage(lang.Parse(clientCfg.Language)),
		chat.WithLogger(logg))

	voiceOpts := []voice.Option{voice.WithLogger(logg)}
	if clientCfg.VoiceTimeout > 0 && cfg != nil {
		voiceOpts = append(voiceOpts, voice.WithTimeout(cfg.VoiceTimeout()))
	}
	if synth := voice.FindCommandSynthesizer(); synth != nil {
		voiceOpts = append(voiceOpts, voice.WithSynthesizer(synth))
	} else if speakReplies {
		logg.Warn("no espeak-ng or espeak on PATH, replies will not be spoken")
	}
	adapter := voice.NewAdapter(session, session.Language, voiceOpts...)

	r := &repl{
		session:   session,
		voice:     adapter,
		out:       os.Stdout,
		log:       logg,
		autoSpeak: speakReplies && adapter.CanSpeak(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	historyFile := filepath.Join(os.TempDir(), "kisanchat_history")
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.OpenFile(historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
		line.Close()
	}()

	for turn := range session.Turns() {
		r.printTurn(turn)
	}
	fmt.Println("Type /help for commands.")

	for ctx.Err() == nil {
		input, err := line.Prompt(fmt.Sprintf("%s> ", session.Language().Code()))
		if err != nil {
			// Ctrl+C, Ctrl+D or a closed terminal all end the session.
			fmt.Println()
			return
		}
		if strings.TrimSpace(input) != "" {
			line.AppendHistory(input)
		}
		if !r.handle(ctx, input) {
			return
		}
	}
}
