// Package ai turns one farmer question into a model reply through eino.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"kisanmitra/internal/config"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/metrics"
)

const claudeMaxTokens = 1024

// ErrEmptyReply is returned when the model answers with no text.
var ErrEmptyReply = errors.New("model returned an empty reply")

// Service answers chat messages with the configured model.
type Service struct {
	provider string
	model    model.BaseChatModel
	log      *logger.Logger
}

// NewService builds the chat model for the provider selected in cfg.
func NewService(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Service, error) {
	provider, provCfg := cfg.Provider()
	chatModel, err := newChatModel(ctx, provider, provCfg)
	if err != nil {
		return nil, err
	}
	return New(provider, chatModel, log), nil
}

// New wraps an existing chat model.
func New(provider string, m model.BaseChatModel, log *logger.Logger) *Service {
	return &Service{
		provider: provider,
		model:    m,
		log:      logger.OrNop(log).Named("ai"),
	}
}

func newChatModel(ctx context.Context, provider string, provCfg config.ProviderConfig) (model.BaseChatModel, error) {
	if provCfg.APIKey == "" {
		return nil, fmt.Errorf("api key for provider %s is missing", provider)
	}
	switch provider {
	case "gemini":
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  provCfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "openai":
		return openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		return claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: claudeMaxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
}

// Provider names the backing model provider.
func (s *Service) Provider() string { return s.provider }

// Reply asks the model to answer message in ui for a user typing in user.
func (s *Service) Reply(ctx context.Context, message string, ui, user lang.Tag) (string, error) {
	start := time.Now()
	resp, err := s.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(InstructionProfile(ui, user)),
		schema.UserMessage(message),
	})
	status := "ok"
	defer func() {
		metrics.RecordCompletion(s.provider, status, time.Since(start).Seconds())
	}()
	if err != nil {
		status = "error"
		s.log.Warn("model call failed",
			zap.String("provider", s.provider),
			zap.String("ui_language", ui.Code()),
			zap.Error(err))
		return "", fmt.Errorf("generate reply: %w", err)
	}
	text := ""
	if resp != nil {
		text = strings.TrimSpace(resp.Content)
	}
	if text == "" {
		status = "empty"
		return "", ErrEmptyReply
	}
	return text, nil
}

// InstructionProfile is the system prompt for one request.
func InstructionProfile(ui, user lang.Tag) string {
	var b strings.Builder
	b.WriteString("You are KisanMitra, a helpful Indian farming assistant.\n")
	fmt.Fprintf(&b, "- The user types in %s.\n", user.Name())
	fmt.Fprintf(&b, "- ALWAYS respond in %s.\n", ui.Name())
	b.WriteString("- Even if the user message is in a different language than the UI, use the UI language for your response.\n")
	b.WriteString("- DO NOT use any markdown (*, **, ###). Use only plain text.\n")
	b.WriteString("- LIMIT response to maximum 5-6 points total.\n")
	b.WriteString("- Keep each point to only 1 or 2 lines maximum.\n")
	b.WriteString("- Add one empty line between every point.\n")
	b.WriteString("- Use very simple everyday language that farmers understand.\n")
	b.WriteString("- Never write long paragraphs.")
	return b.String()
}
