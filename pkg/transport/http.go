package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrymomot/flagsync/pkg/feature"
)

const (
	flagsPath     = "/v1/flags"
	updatedAtPath = "/v1/flags/updated-at"
)

// HTTPConfig describes the remote configuration API.
type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Tenant  string
	Timeout time.Duration
}

// HTTPTransport fetches configuration from the flag API over HTTP.
// It is safe for concurrent use.
type HTTPTransport struct {
	baseURL     string
	apiKey      string
	tenant      string
	client      *http.Client
	maxBodySize int64
	userAgent   string
	logger      *slog.Logger
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default client. The config timeout is not applied to it.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithMaxBodySize caps the accepted payload size in bytes.
func WithMaxBodySize(n int64) HTTPOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxBodySize = n
		}
	}
}

func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

func WithLogger(l *slog.Logger) HTTPOption {
	return func(t *HTTPTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewHTTPTransport validates cfg and builds a transport.
func NewHTTPTransport(cfg HTTPConfig, opts ...HTTPOption) (*HTTPTransport, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.Join(ErrInvalidConfig, fmt.Errorf("base url %q must be an absolute http(s) url", cfg.BaseURL))
	}

	t := &HTTPTransport{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		tenant:      cfg.Tenant,
		client:      &http.Client{Timeout: cfg.Timeout},
		maxBodySize: defaultMaxBodySize,
		userAgent:   "flagsync",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func (t *HTTPTransport) FetchConfig(ctx context.Context, mode Mode) (*Response, error) {
	path := flagsPath
	switch mode {
	case ModeFull:
	case ModeTimeOnly:
		path = updatedAtPath
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+path, nil)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	if t.tenant != "" {
		req.Header.Set("X-Tenant", t.tenant)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	t.logger.DebugContext(ctx, "config fetched",
		slog.String("mode", string(mode)),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusNotModified {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, t.maxBodySize))
		return &Response{Header: resp.Header.Clone()}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, t.maxBodySize))
		return nil, fmt.Errorf("%w: %s %s: %d", ErrUnexpectedStatus, req.Method, path, resp.StatusCode)
	}

	body, err := readLimited(resp.Body, t.maxBodySize)
	if err != nil {
		return nil, err
	}

	header := resp.Header.Clone()
	if mode == ModeTimeOnly {
		if _, ok := UpdatedAtMillis(header); !ok {
			fillUpdatedAtFromBody(header, body)
		}
		return &Response{Header: header}, nil
	}

	schema, err := feature.ParseSchema(body)
	if err != nil {
		return nil, errors.Join(ErrDecodePayload, err)
	}
	return &Response{Schema: schema, Raw: body, Header: header}, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, errors.Join(ErrRequestFailed, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrPayloadTooLarge, limit)
	}
	return body, nil
}

// fillUpdatedAtFromBody accepts time-only probes that answer with
// {"updated_at": <seconds>} instead of a header.
func fillUpdatedAtFromBody(h http.Header, body []byte) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return
	}
	var probe struct {
		UpdatedAt *float64 `json:"updated_at"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.UpdatedAt == nil {
		return
	}
	h.Set(HeaderUpdatedAt, UpdatedAtHeader(*probe.UpdatedAt).Get(HeaderUpdatedAt))
}
