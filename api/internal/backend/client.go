package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"disposal-bot/api/internal/util"
)

const maxBody = 4 << 20

// Client talks to the disposal REST backend. It is safe for concurrent use;
// WithToken returns a copy bound to one user's session.
type Client struct {
	BaseURL string

	token   string
	httpc   *http.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpc = h } }

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithRateLimit bounds outgoing requests. rps <= 0 disables the limiter.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpc:   &http.Client{Timeout: 30 * time.Second},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// WithToken returns a client that authenticates as the session owner.
// The limiter and HTTP client are shared with the parent.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

func (c *Client) Token() string { return c.token }

// APIError is a non-2xx response or a success:false envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// MessageOf returns the server-reported message carried by err, or fallback.
func MessageOf(err error, fallback string) string {
	var ae *APIError
	if errors.As(err, &ae) && strings.TrimSpace(ae.Message) != "" {
		return ae.Message
	}
	return fallback
}

// IsStatus reports whether err is an APIError with the given HTTP status.
func IsStatus(err error, status int) bool {
	var ae *APIError
	return errors.As(err, &ae) && ae.Status == status
}

type envelope struct {
	Success *bool            `json:"success"`
	Data    json.RawMessage  `json:"data"`
	Error   util.FlexMessage `json:"error"`
	Message util.FlexMessage `json:"message"`
}

func (e envelope) message() string {
	if s := strings.TrimSpace(e.Error.String()); s != "" {
		return s
	}
	return strings.TrimSpace(e.Message.String())
}

// request body that is already encoded (multipart)
type rawBody struct {
	contentType string
	data        []byte
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var (
		rdr io.Reader
		ct  string
	)
	switch b := body.(type) {
	case nil:
	case rawBody:
		rdr, ct = bytes.NewReader(b.data), b.contentType
	default:
		js, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("backend: encode %s %s: %w", method, path, err)
		}
		rdr, ct = bytes.NewReader(js), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rdr)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	if ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("backend: %s %s: %w", method, path, err)
		}
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("backend: read %s %s: %w", method, path, err)
	}
	c.log.Debug("backend call",
		"method", method, "path", path, "status", resp.StatusCode,
		"request_id", reqID, "took", time.Since(start))

	var env envelope
	envErr := json.Unmarshal(raw, &env)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := ""
		if envErr == nil {
			msg = env.message()
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if envErr != nil {
		if out == nil || len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		// not an envelope; the body may be the bare data
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
		}
		return nil
	}
	if env.Success != nil && !*env.Success {
		return &APIError{Status: resp.StatusCode, Message: env.message()}
	}
	if out == nil {
		return nil
	}
	data := env.Data
	if env.Success == nil && len(data) == 0 {
		data = raw
	}
	if len(data) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeList accepts either a bare array or an object wrapping one
// (e.g. {"disposals":[...], "total": 3}).
func decodeList[T any](raw json.RawMessage) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []T{}, nil
	}
	if raw[0] == '[' {
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	for _, k := range []string{"items", "results", "disposals", "pickups", "chws", "users", "data"} {
		if v, ok := obj[k]; ok {
			return decodeList[T](v)
		}
	}
	for _, v := range obj {
		if v = bytes.TrimSpace(v); len(v) > 0 && v[0] == '[' {
			return decodeList[T](v)
		}
	}
	return []T{}, nil
}

func (c *Client) list(ctx context.Context, path string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}
