// SPDX-License-Identifier: MIT

// Package bili resolves bilibili video references into direct stream URLs
// via the public WBI-signed playurl API.
package bili

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/mediapath"
	"github.com/vosync/vosync/internal/metrics"
	"github.com/vosync/vosync/internal/telemetry"
)

// Referer is the header value bilibili expects on API and stream requests.
const Referer = "https://www.bilibili.com/"

const (
	defaultBaseURL = "https://api.bilibili.com"

	navPath     = "/x/web-interface/nav"
	viewPath    = "/x/web-interface/view"
	playURLPath = "/x/player/wbi/playurl"
)

const (
	defaultTimeout    = 10 * time.Second
	defaultRetries    = 2
	defaultBackoff    = 200 * time.Millisecond
	defaultMaxBackoff = 2 * time.Second
	defaultRateLimit  = 4
	defaultBurst      = 8
	defaultMixinTTL   = 10 * time.Minute
	defaultUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Resolved is the outcome of a successful resolution.
type Resolved struct {
	PlayURL string
	Cover   *string
}

// Options configures the resolver client.
type Options struct {
	// BaseURL overrides the API host, mainly for tests.
	BaseURL    string
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	MaxBackoff time.Duration
	RateLimit  rate.Limit
	Burst      int
	// MixinTTL bounds how long a derived signing key is reused before the
	// nav endpoint is asked again. The upstream rotates keys daily.
	MixinTTL time.Duration
}

func normalizeOptions(opts Options) Options {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = defaultRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.MixinTTL <= 0 {
		opts.MixinTTL = defaultMixinTTL
	}
	return opts
}

// Client talks to the bilibili web API. It rate-limits and retries its
// requests and caches the derived wbi signing key.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration

	mixin *expirable.LRU[string, string]
	sf    singleflight.Group

	logger zerolog.Logger
	now    func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

// New creates a resolver client.
func New(opts Options) *Client {
	opts = normalizeOptions(opts)
	transport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: transport,
		},
		userAgent:  opts.UserAgent,
		limiter:    rate.NewLimiter(opts.RateLimit, opts.Burst),
		maxRetries: opts.MaxRetries,
		backoff:    opts.Backoff,
		maxBackoff: opts.MaxBackoff,
		mixin:      expirable.NewLRU[string, string](1, nil, opts.MixinTTL),
		logger:     log.WithComponent("bili"),
		now:        time.Now,
		rnd:        rand.New(rand.NewSource(time.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

// Resolve turns a raw input (bare BV id, share URL) into a playable stream
// URL plus cover image. The returned URL points at bilibili's CDN and must
// be fetched with the Referer header, which is why callers proxy it.
func (c *Client) Resolve(ctx context.Context, input string) (Resolved, error) {
	tracer := telemetry.Tracer("vosync.bili")
	ctx, span := tracer.Start(ctx, "vosync.bili.resolve")
	defer span.End()

	bvid, ok := mediapath.ExtractBvid(input)
	if !ok {
		err := apierr.BadRequest("invalid bilibili id")
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}
	span.SetAttributes(attribute.String("bili.bvid", bvid))

	view, err := c.fetchView(ctx, bvid)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}

	params := map[string]string{
		"bvid":  bvid,
		"cid":   strconv.FormatInt(view.Cid, 10),
		"qn":    "112", // 1080P+
		"fnval": "1",   // progressive MP4 with muxed audio; 16 would be DASH
		"fourk": "1",
	}
	mixin, err := c.mixinKey(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}
	query := signQuery(params, mixin, c.now().Unix())

	var play playURLResponse
	if err := c.getJSON(ctx, "playurl", c.baseURL+playURLPath+"?"+query, &play); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}
	if play.Code != 0 {
		err := apierr.BadRequestf("playurl error: %s", play.Message)
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}

	var mediaURL string
	switch {
	case len(play.Data.Durl) > 0:
		mediaURL = play.Data.Durl[0].URL
	case play.Data.Dash != nil:
		err := apierr.BadRequest("DASH format not supported (audio/video separated)")
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	default:
		err := apierr.BadRequest("no playable stream")
		span.SetStatus(codes.Error, err.Error())
		return Resolved{}, err
	}

	span.SetStatus(codes.Ok, "")
	c.logger.Debug().Str("bvid", bvid).Int64("cid", view.Cid).Msg("bili.resolved")
	return Resolved{PlayURL: mediaURL, Cover: view.Pic}, nil
}

func (c *Client) fetchView(ctx context.Context, bvid string) (viewData, error) {
	q := url.Values{}
	q.Set("bvid", bvid)

	var view viewResponse
	if err := c.getJSON(ctx, "view", c.baseURL+viewPath+"?"+q.Encode(), &view); err != nil {
		return viewData{}, err
	}
	return view.Data, nil
}

const mixinCacheKey = "wbi"

// mixinKey returns the cached signing key or derives a fresh one from the
// nav endpoint. Concurrent misses share one upstream fetch.
func (c *Client) mixinKey(ctx context.Context) (string, error) {
	if key, ok := c.mixin.Get(mixinCacheKey); ok {
		metrics.RecordMixinKey("cache")
		return key, nil
	}

	v, err, _ := c.sf.Do(mixinCacheKey, func() (any, error) {
		if key, ok := c.mixin.Get(mixinCacheKey); ok {
			metrics.RecordMixinKey("cache")
			return key, nil
		}

		var nav navResponse
		if err := c.getJSON(ctx, "nav", c.baseURL+navPath, &nav); err != nil {
			return nil, err
		}
		key := deriveMixinKey(keyFromURL(nav.Data.WbiImg.ImgURL) + keyFromURL(nav.Data.WbiImg.SubURL))
		c.mixin.Add(mixinCacheKey, key)
		metrics.RecordMixinKey("fetch")
		c.logger.Debug().Msg("bili.mixin_key.refreshed")
		return key, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// getJSON fetches rawURL and decodes the body. Decoding is attempted for
// any status below 500 because the API reports errors as JSON envelopes
// with a non-zero code rather than HTTP status codes.
func (c *Client) getJSON(ctx context.Context, endpoint, rawURL string, v any) error {
	resp, err := c.doGet(ctx, endpoint, rawURL)
	if err != nil {
		return apierr.BadRequestf("%s request failed: %v", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return apierr.BadRequestf("%s parse failed: %v", endpoint, err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, endpoint, rawURL string) (*http.Response, error) {
	tracer := telemetry.Tracer("vosync.bili")
	route, urlLabel := traceLabels(rawURL)
	ctx, span := tracer.Start(ctx, "vosync.bili.request", trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String(telemetry.HTTPMethodKey, http.MethodGet),
		attribute.String(telemetry.HTTPRouteKey, route),
		attribute.String(telemetry.UpstreamEndpointKey, endpoint),
	)
	defer span.End()

	maxAttempts := c.maxRetries + 1
	var lastErr error
	var lastStatus int
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, attemptSpan := tracer.Start(ctx, "vosync.bili.request.attempt", trace.WithSpanKind(trace.SpanKindClient))
		attemptSpan.SetAttributes(telemetry.UpstreamAttributes(endpoint, attempt)...)

		if err := c.limiter.Wait(attemptCtx); err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
			attemptSpan.End()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
		if err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
			attemptSpan.End()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		c.applyHeaders(req)
		otel.GetTextMapPropagator().Inject(attemptCtx, propagation.HeaderCarrier(req.Header))

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		duration := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}

		retry := (err != nil || status != http.StatusOK) && attempt < maxAttempts && shouldRetry(resp, err)
		recordAttempt(endpoint, status, duration, err, retry)

		attemptSpan.SetAttributes(telemetry.HTTPAttributes(http.MethodGet, route, urlLabel, status)...)
		if err != nil {
			attemptSpan.RecordError(err)
			attemptSpan.SetStatus(codes.Error, err.Error())
		} else if status >= http.StatusBadRequest {
			attemptSpan.SetStatus(codes.Error, http.StatusText(status))
		} else {
			attemptSpan.SetStatus(codes.Ok, "")
		}
		attemptSpan.End()

		if err == nil && status < http.StatusInternalServerError {
			span.SetAttributes(telemetry.HTTPAttributes(http.MethodGet, route, urlLabel, status)...)
			if status >= http.StatusBadRequest {
				span.SetStatus(codes.Error, http.StatusText(status))
			} else {
				span.SetStatus(codes.Ok, "")
			}
			return resp, nil
		}

		if resp != nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}
		lastErr = err
		lastStatus = status

		if !retry {
			break
		}

		wait := c.backoffFor(attempt - 1)
		if err := sleepWithContext(ctx, wait); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		span.SetStatus(codes.Error, lastErr.Error())
		return nil, lastErr
	}
	span.SetStatus(codes.Error, http.StatusText(lastStatus))
	return nil, fmt.Errorf("upstream status %d", lastStatus)
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Referer", Referer)
}

func recordAttempt(endpoint string, status int, duration time.Duration, err error, retry bool) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case retry:
		outcome = "retry"
	case status >= http.StatusInternalServerError:
		outcome = "error"
	}
	metrics.RecordBiliRequest(endpoint, outcome, duration.Seconds())
}

func shouldRetry(resp *http.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return true
	}
	return false
}

func (c *Client) backoffFor(attempt int) time.Duration {
	wait := c.backoff * time.Duration(1<<attempt)
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	jitter := time.Duration(c.randInt63n(int64(wait/5 + 1)))
	return wait + jitter
}

func (c *Client) randInt63n(n int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rnd.Int63n(n)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// traceLabels derives low-cardinality span labels from a request URL. The
// query string is dropped so signed parameters stay out of telemetry.
func traceLabels(rawURL string) (string, string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, rawURL
	}
	route := u.Path
	if route == "" {
		route = "/"
	}
	urlLabel := route
	if u.RawQuery != "" {
		urlLabel += "?"
	}
	return route, urlLabel
}
