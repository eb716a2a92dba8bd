// Package transliterate converts Latin-typed Indian language text into its
// native script through a phonetic input-tools endpoint.
package transliterate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"kisanmitra/internal/lang"
	"kisanmitra/internal/logger"
	"kisanmitra/internal/metrics"
)

const (
	DefaultEndpoint = "https://inputtools.google.com/request"
	DefaultTimeout  = 5 * time.Second
	DefaultCacheTTL = 24 * time.Hour

	successMarker = "SUCCESS"
	maxBodySize   = 64 * 1024
)

var (
	// ErrMalformedEnvelope is returned when the endpoint answers with an unexpected shape.
	ErrMalformedEnvelope = errors.New("transliterate: malformed response envelope")
	// ErrUnsupportedTarget is returned for languages the endpoint has no input method for.
	ErrUnsupportedTarget = errors.New("transliterate: unsupported target language")
)

// input method codes understood by the endpoint
var inputMethods = lang.Table[string]{
	lang.Hindi:  "hi-t-i0-und",
	lang.Telugu: "te-t-i0-und",
}

// Cache stores converted text. The redis client satisfies it.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Client calls the phonetic input endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	log        *logger.Logger
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

// WithCache enables result caching.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cache
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Client) {
		c.log = logger.OrNop(l)
	}
}

// NewClient builds a client for endpoint, or DefaultEndpoint when empty.
func NewClient(endpoint string, opts ...Option) *Client {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		cacheTTL:   DefaultCacheTTL,
		log:        logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Transliterate converts text into the script of target.
func (c *Client) Transliterate(ctx context.Context, text string, target lang.Tag) (string, error) {
	itc := inputMethods.Get(target)
	if itc == "" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTarget, target)
	}
	key := cacheKey(itc, text)
	if cached, ok := c.fromCache(ctx, key); ok {
		metrics.RecordTransliteration("cached")
		return cached, nil
	}

	converted, err := c.fetch(ctx, text, itc)
	if err != nil {
		metrics.RecordTransliteration("failed")
		return "", err
	}
	metrics.RecordTransliteration("ok")
	c.toCache(ctx, key, converted)
	return converted, nil
}

func (c *Client) fetch(ctx context.Context, text, itc string) (string, error) {
	target, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("transliterate: invalid endpoint: %w", err)
	}
	q := target.Query()
	q.Set("text", text)
	q.Set("itc", itc)
	q.Set("num", "1")
	q.Set("cp", "0")
	q.Set("cs", "1")
	q.Set("ie", "utf-8")
	q.Set("oe", "utf-8")
	q.Set("app", "kisanmitra")
	target.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "KisanMitra-Transliterate/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transliterate: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transliterate: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("transliterate: read body: %w", err)
	}
	return ParseEnvelope(body)
}

// ParseEnvelope validates a response of the form
// ["SUCCESS", [[input, [candidate, ...], ...]]] and returns the first candidate
// in NFC form.
func ParseEnvelope(body []byte) (string, error) {
	if !gjson.ValidBytes(body) {
		return "", ErrMalformedEnvelope
	}
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return "", ErrMalformedEnvelope
	}
	marker := root.Get("0")
	if marker.Type != gjson.String || marker.Str != successMarker {
		return "", ErrMalformedEnvelope
	}
	candidate := root.Get("1.0.1.0")
	if candidate.Type != gjson.String || strings.TrimSpace(candidate.Str) == "" {
		return "", ErrMalformedEnvelope
	}
	return norm.NFC.String(candidate.Str), nil
}

func cacheKey(itc, text string) string {
	return "translit:" + itc + ":" + text
}

func (c *Client) fromCache(ctx context.Context, key string) (string, bool) {
	if c.cache == nil {
		return "", false
	}
	val, err := c.cache.Get(ctx, key)
	if err != nil || val == "" {
		return "", false
	}
	return val, true
}

func (c *Client) toCache(ctx context.Context, key, val string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, key, val, c.cacheTTL); err != nil {
		c.log.Warn("transliteration cache write failed", zap.Error(err))
	}
}
