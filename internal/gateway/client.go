// Package gateway talks to the hosted backend: PostgREST tables, views and RPC, the
// storage object API and the GoTrue auth endpoints. Every failure leaves this package as
// one of the closed error kinds of internal/errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/ratelimit"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRPS     = 50.0
	defaultBucket  = "posts"

	// Outbound calls share one bucket; the backend limits per project, not per user.
	limiterKey = "backend"

	mediaJSON   = "application/json"
	mediaObject = "application/vnd.pgrst.object+json"

	maxErrorBody = 64 << 10
)

// Config configures a Client.
type Config struct {
	BaseURL           string
	AnonKey           string
	PhotoBucket       string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// Client is a rate-limited backend client. The zero token means anonymous access; use
// WithToken or WithTokenSource for calls on behalf of a signed-in user.
type Client struct {
	http     *http.Client
	baseURL  string
	anonKey  string
	bucket   string
	token    string
	tokenSrc func() string
	limiter  *ratelimit.KeyedRateLimiter
	logger   *slog.Logger
	tracer   trace.Tracer
}

// New creates a new backend client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRPS
	}
	bucket := cfg.PhotoBucket
	if bucket == "" {
		bucket = defaultBucket
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		anonKey: cfg.AnonKey,
		bucket:  bucket,
		limiter: ratelimit.New(rps, int(rps)*2),
		logger:  logger,
		tracer:  otel.Tracer("github.com/mymapsapp/mymaps-server/internal/gateway"),
	}
}

// WithToken returns a client that authenticates as the holder of accessToken. The copy
// shares the HTTP client and rate limiter with c.
func (c *Client) WithToken(accessToken string) *Client {
	cp := *c
	cp.token = accessToken
	cp.tokenSrc = nil
	return &cp
}

// WithTokenSource returns a client that asks src for the access token on every call, so
// a long-lived client follows token refreshes. An empty token falls back to anonymous.
func (c *Client) WithTokenSource(src func() string) *Client {
	cp := *c
	cp.token = ""
	cp.tokenSrc = src
	return &cp
}

// Authenticated reports whether the client carries a user access token.
func (c *Client) Authenticated() bool {
	return c.userToken() != ""
}

// Close releases resources held by the client.
func (c *Client) Close() {
	c.limiter.Stop()
}

// request describes one backend call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	// body is JSON-encoded unless raw is set.
	body        any
	raw         []byte
	contentType string
	// single asks PostgREST for exactly one object instead of an array.
	single bool
	prefer []string
	header http.Header
}

// do executes r and decodes a successful JSON response into out (which may be nil).
func (c *Client) do(ctx context.Context, r request, out any) error {
	ctx, span := c.tracer.Start(ctx, "gateway."+strings.ReplaceAll(r.op, " ", "_"),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("url.path", r.path),
		))
	defer span.End()

	body, status, err := c.roundTrip(ctx, r)
	if status != 0 {
		span.SetAttributes(attribute.Int("http.response.status_code", status))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(errors.CodeOf(err)))
		return err
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		err = errors.Wrapf(err, errors.CodeInternal, "%s: decode response", r.op)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode")
		return err
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, r request) ([]byte, int, error) {
	if err := c.limiter.Wait(ctx, limiterKey); err != nil {
		return nil, 0, fmt.Errorf("%s: rate limit wait: %w", r.op, err)
	}

	var payload io.Reader
	switch {
	case r.raw != nil:
		payload = bytes.NewReader(r.raw)
	case r.body != nil:
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, 0, errors.Wrapf(err, errors.CodeInternal, "%s: encode body", r.op)
		}
		payload = bytes.NewReader(data)
	}

	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, payload)
	if err != nil {
		return nil, 0, errors.Wrapf(err, errors.CodeInternal, "%s: create request", r.op)
	}

	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	req.Header.Set("Accept", mediaJSON)
	if r.single {
		req.Header.Set("Accept", mediaObject)
	}
	if payload != nil {
		ct := r.contentType
		if ct == "" {
			ct = mediaJSON
		}
		req.Header.Set("Content-Type", ct)
	}
	if len(r.prefer) > 0 {
		req.Header.Set("Prefer", strings.Join(r.prefer, ","))
	}
	for k, vs := range r.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	c.logger.Debug("backend request",
		"op", r.op,
		"method", r.method,
		"path", r.path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, fmt.Errorf("%s: %w", r.op, ctxErr)
		}
		return nil, 0, errors.Wrapf(err, errors.CodeNetwork, "%s: backend unreachable", r.op)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, resp.StatusCode, errors.Wrapf(err, errors.CodeNetwork, "%s: read response", r.op)
		}
		return body, resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	nerr := normalize(r.op, resp.StatusCode, body)
	c.logger.Debug("backend error",
		"op", r.op,
		"status", resp.StatusCode,
		"code", errors.CodeOf(nerr),
	)
	return nil, resp.StatusCode, nerr
}

func (c *Client) userToken() string {
	if c.tokenSrc != nil {
		return c.tokenSrc()
	}
	return c.token
}

func (c *Client) bearer() string {
	if t := c.userToken(); t != "" {
		return t
	}
	return c.anonKey
}

func tablePath(table string) string {
	return "/rest/v1/" + table
}

func rpcPath(fn string) string {
	return "/rest/v1/rpc/" + fn
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + v
}

// quote wraps v for use inside PostgREST or=() and cs.{} filters.
func quote(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}
