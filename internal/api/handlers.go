package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/metrics"
	"kisanmitra/internal/models"
	"kisanmitra/internal/storage"
	"kisanmitra/internal/suggest"
	"kisanmitra/internal/worker"
)

const (
	banner            = "KisanMitra backend is running. POST /chat to talk to the assistant."
	busyMessage       = "server is busy, please retry"
	defaultTimeout    = 60 * time.Second
	statsWindow       = 24 * time.Hour
	maxMessageRunes   = 4000
	maxTranslitLength = 200
)

// Replier produces the model answer for one message.
type Replier interface {
	Reply(ctx context.Context, message string, ui, user lang.Tag) (string, error)
	Provider() string
}

// Runner executes work on the bounded worker pool. *worker.Dispatcher satisfies it.
type Runner interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context)) error
}

// Transliterator converts Latin-typed text into the target script.
type Transliterator interface {
	Transliterate(ctx context.Context, text string, target lang.Tag) (string, error)
}

// Auditor records request metadata. *storage.Audit satisfies it.
type Auditor interface {
	Record(ctx context.Context, r storage.ChatRequest) error
	Summary(ctx context.Context, since time.Time) ([]storage.LanguageCount, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps collects what the handlers need. Transliterator, Audit and Cache are optional.
type Deps struct {
	Replier        Replier
	Workers        Runner
	Transliterator Transliterator
	Audit          Auditor
	Cache          Pinger
	RequestTimeout time.Duration
	RateLimit      int
	AllowedOrigins []string
	Logger         *logger.Logger
}

// Handler wires HTTP routes to the model service and its supporting stores.
type Handler struct {
	replier        Replier
	workers        Runner
	transliterator Transliterator
	audit          Auditor
	cache          Pinger
	timeout        time.Duration
	rateLimit      int
	origins        []string
	log            *logger.Logger
	now            func() time.Time
}

// NewHandler constructs a Handler instance.
func NewHandler(d Deps) *Handler {
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Handler{
		replier:        d.Replier,
		workers:        d.Workers,
		transliterator: d.Transliterator,
		audit:          d.Audit,
		cache:          d.Cache,
		timeout:        timeout,
		rateLimit:      d.RateLimit,
		origins:        d.AllowedOrigins,
		log:            logger.OrNop(d.Logger).Named("api"),
		now:            time.Now,
	}
}

// RegisterRoutes attaches all HTTP routes and middleware to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(requestLogger(h.log), corsMiddleware(h.origins))

	router.GET("/", h.index)
	router.GET("/health", h.health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stats", h.stats)
	router.GET("/transliterate", h.transliterate)

	chat := router.Group("/chat")
	if h.rateLimit > 0 {
		chat.Use(rateLimit(h.rateLimit))
	}
	chat.POST("", h.chat)
}

func (h *Handler) index(c *gin.Context) {
	c.String(http.StatusOK, banner)
}

func (h *Handler) health(c *gin.Context) {
	body := gin.H{"status": "healthy", "provider": h.replier.Provider()}
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()
		if err := h.cache.Ping(ctx); err != nil {
			body["cache"] = "unavailable"
		} else {
			body["cache"] = "ok"
		}
	}
	c.JSON(http.StatusOK, body)
}

func errorBody(content string) models.ChatResponse {
	return models.ChatResponse{Content: &content, Error: true}
}

// resolveLanguages applies uiLanguage, then the legacy language field, then
// English for the reply, and userLanguage or English for the input.
func resolveLanguages(req models.ChatRequest) (ui, user lang.Tag) {
	target := req.UILanguage
	if strings.TrimSpace(target) == "" {
		target = req.Language
	}
	return lang.Parse(target), lang.Parse(req.UserLanguage)
}

func (h *Handler) chat(c *gin.Context) {
	var req models.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		c.JSON(http.StatusBadRequest, errorBody("message is required"))
		return
	}
	if len([]rune(message)) > maxMessageRunes {
		c.JSON(http.StatusBadRequest, errorBody("message is too long"))
		return
	}

	ui, user := resolveLanguages(req)
	requestID := correlationID(c)
	log := h.log.With(
		zap.String("correlation_id", requestID),
		zap.String("ui_language", ui.Code()),
		zap.String("user_language", user.Code()),
	)
	log.Info("chat request", zap.String("message", logger.Preview(message)))
	metrics.RecordChat(ui.Code(), user.Code())

	start := h.now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	var (
		reply    string
		replyErr error
	)
	err := h.workers.Do(ctx, c.ClientIP(), func(ctx context.Context) {
		reply, replyErr = h.replier.Reply(ctx, message, ui, user)
	})
	if err == nil {
		err = replyErr
	}

	entry := storage.ChatRequest{
		RequestID:    requestID,
		UILanguage:   ui.Code(),
		UserLanguage: user.Code(),
		Provider:     h.replier.Provider(),
		Status:       storage.StatusOK,
		CreatedAt:    start,
	}
	defer func() {
		entry.Latency = h.now().Sub(start)
		h.record(log, entry)
	}()

	switch {
	case errors.Is(err, worker.ErrDispatcherBusy):
		entry.Status = storage.StatusRejected
		entry.Error = err.Error()
		log.Warn("chat rejected, worker queue full")
		c.JSON(http.StatusServiceUnavailable, errorBody(busyMessage))
		return
	case err != nil:
		entry.Status = storage.StatusError
		entry.Error = err.Error()
		log.Error("chat failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("AI Error: "+err.Error()))
		return
	}

	now := h.now()
	c.JSON(http.StatusOK, models.ChatResponse{
		Role:        models.RoleAssistant,
		Content:     &reply,
		Suggestions: suggest.DefaultsFor(ui),
		Timestamp:   &now,
	})
}

func (h *Handler) record(log *logger.Logger, entry storage.ChatRequest) {
	if h.audit == nil {
		return
	}
	// The response is already written; auditing must not depend on the client staying connected.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.audit.Record(ctx, entry); err != nil {
		log.Warn("audit record failed", zap.Error(err))
	}
}

type transliterateResponse struct {
	Text           string `json:"text"`
	Transliterated bool   `json:"transliterated"`
}

// transliterate converts ?text= into the script of ?lang= (default hi). The
// original text is returned with transliterated=false on any failure.
func (h *Handler) transliterate(c *gin.Context) {
	text := strings.TrimSpace(c.Query("text"))
	if text == "" {
		c.JSON(http.StatusBadRequest, errorBody("text is required"))
		return
	}
	if len([]rune(text)) > maxTranslitLength {
		c.JSON(http.StatusBadRequest, errorBody("text is too long"))
		return
	}
	code := c.DefaultQuery("lang", lang.Hindi.Code())
	target := lang.Parse(code)

	if h.transliterator == nil || lang.Detect(text) != lang.Default {
		c.JSON(http.StatusOK, transliterateResponse{Text: text})
		return
	}
	out, err := h.transliterator.Transliterate(c.Request.Context(), text, target)
	if err != nil {
		h.log.Debug("transliteration failed",
			zap.String("ui_language", target.Code()),
			zap.Error(err))
		c.JSON(http.StatusOK, transliterateResponse{Text: text})
		return
	}
	c.JSON(http.StatusOK, transliterateResponse{Text: out, Transliterated: true})
}

func (h *Handler) stats(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, errorBody("request audit is disabled"))
		return
	}
	since := h.now().Add(-statsWindow)
	rows, err := h.audit.Summary(c.Request.Context(), since)
	if err != nil {
		h.log.Error("stats query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorBody("stats unavailable"))
		return
	}
	if rows == nil {
		rows = []storage.LanguageCount{}
	}
	c.JSON(http.StatusOK, gin.H{"since": since, "requests": rows})
}
