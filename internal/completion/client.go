// Package completion sends normalised messages to the chat service and turns
// every outcome into exactly one assistant turn.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kisanmitra/internal/conversation"
	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/models"
	"kisanmitra/internal/suggest"
)

const (
	DefaultTimeout = 60 * time.Second
	maxBodySize    = 1 << 20
)

// ErrBusy is returned when a request is already in flight. No turn is appended.
var ErrBusy = errors.New("completion: request already in flight")

// Client posts to the chat endpoint of the completion service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	store      *conversation.Store
	log        *logger.Logger
	inflight   atomic.Bool
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = logger.OrNop(l).Named("completion")
	}
}

// NewClient builds a client for the service at baseURL that appends replies to store.
func NewClient(baseURL string, store *conversation.Store, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/chat",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		store:      store,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Loading reports whether a request is outstanding.
func (c *Client) Loading() bool {
	return c.inflight.Load()
}

// Send posts text and appends the resulting assistant turn, which is also
// returned. Failures become a localized error turn; the only error returned
// is ErrBusy, in which case nothing is appended.
func (c *Client) Send(ctx context.Context, text string, ui, detected lang.Tag) (models.Turn, error) {
	if !c.inflight.CompareAndSwap(false, true) {
		return models.Turn{}, ErrBusy
	}
	defer c.inflight.Store(false)

	resp, err := c.post(ctx, models.ChatRequest{
		Message:      text,
		Language:     ui.Code(),
		UILanguage:   ui.Code(),
		UserLanguage: detected.Code(),
	})
	if err != nil {
		c.log.Warn("completion request failed",
			zap.String("ui_language", ui.Code()),
			zap.String("user_language", detected.Code()),
			zap.Error(err))
		return c.store.Append(models.Turn{
			Role:    models.RoleAssistant,
			Content: failureContent(err, ui),
		}), nil
	}
	return c.store.Append(models.Turn{
		Role:        models.RoleAssistant,
		Content:     *resp.Content,
		Suggestions: suggest.Resolve(resp, ui),
	}), nil
}

// ServiceError is a failure reported by the service in its JSON envelope.
type ServiceError struct {
	Status  int
	Content string
}

func (e *ServiceError) Error() string {
	if e.Content == "" {
		return fmt.Sprintf("completion: service returned status %d", e.Status)
	}
	return fmt.Sprintf("completion: service returned status %d: %s", e.Status, e.Content)
}

// ErrMalformedResponse marks a reply that did not match the expected envelope.
var ErrMalformedResponse = errors.New("completion: malformed response")

func (c *Client) post(ctx context.Context, payload models.ChatRequest) (*models.ChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw)
}

// parseResponse validates the envelope. Non-200 statuses and bodies flagged
// with error:true become ServiceError; anything undecodable, or a success
// without a content field, is ErrMalformedResponse.
func parseResponse(status int, raw []byte) (*models.ChatResponse, error) {
	var out models.ChatResponse
	decodeErr := json.Unmarshal(raw, &out)

	if status != http.StatusOK || (decodeErr == nil && out.Error) {
		se := &ServiceError{Status: status}
		if decodeErr == nil && out.Content != nil {
			se.Content = strings.TrimSpace(*out.Content)
		}
		return nil, se
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, decodeErr)
	}
	if out.Content == nil {
		return nil, fmt.Errorf("%w: missing content", ErrMalformedResponse)
	}
	return &out, nil
}

func failureContent(err error, ui lang.Tag) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Content != "" {
		return se.Content
	}
	return lang.ErrorReply(ui)
}
