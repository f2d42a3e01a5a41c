// SPDX-License-Identifier: MIT

package bili

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosync/vosync/internal/apierr"
)

// upstream is a stub of the bilibili web API with overridable handlers.
type upstream struct {
	mu        sync.Mutex
	hits      map[string]int
	viewBvid  string
	playQuery string
	referer   string
	agent     string

	nav  http.HandlerFunc
	view http.HandlerFunc
	play http.HandlerFunc
}

func newUpstream(t *testing.T) (*upstream, *Client) {
	t.Helper()

	u := &upstream{hits: map[string]int{}}
	u.nav = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w,
			`{"code":0,"data":{"wbi_img":{"img_url":"https://i0.hdslb.com/bfs/wbi/%s.png","sub_url":"https://i0.hdslb.com/bfs/wbi/%s.png"}}}`,
			testImgKey, testSubKey)
	}
	u.view = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w,
			`{"code":0,"data":{"bvid":"BV1xx411c7mD","cid":1176840,"title":"demo","pic":"https://i0.hdslb.com/cover.jpg","duration":355}}`)
	}
	u.play = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w,
			`{"code":0,"message":"0","data":{"durl":[{"url":"https://cn-gotcha.bilivideo.com/video.mp4"}]}}`)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(navPath, func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits["nav"]++
		u.mu.Unlock()
		u.nav(w, r)
	})
	mux.HandleFunc(viewPath, func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits["view"]++
		u.viewBvid = r.URL.Query().Get("bvid")
		u.referer = r.Header.Get("Referer")
		u.agent = r.Header.Get("User-Agent")
		u.mu.Unlock()
		u.view(w, r)
	})
	mux.HandleFunc(playURLPath, func(w http.ResponseWriter, r *http.Request) {
		u.mu.Lock()
		u.hits["playurl"]++
		u.playQuery = r.URL.RawQuery
		u.mu.Unlock()
		u.play(w, r)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c := New(Options{
		BaseURL:    srv.URL,
		MaxRetries: 1,
		Backoff:    time.Millisecond,
		MaxBackoff: 2 * time.Millisecond,
		RateLimit:  1000,
		Burst:      1000,
	})
	c.now = func() time.Time { return time.Unix(1702204169, 0) }
	return u, c
}

func (u *upstream) count(name string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.hits[name]
}

func (u *upstream) lastPlayQuery() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.playQuery
}

func TestResolveHappyPath(t *testing.T) {
	u, c := newUpstream(t)

	got, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	assert.Equal(t, "https://cn-gotcha.bilivideo.com/video.mp4", got.PlayURL)
	require.NotNil(t, got.Cover)
	assert.Equal(t, "https://i0.hdslb.com/cover.jpg", *got.Cover)

	wantQuery := signQuery(map[string]string{
		"bvid":  "BV1xx411c7mD",
		"cid":   "1176840",
		"qn":    "112",
		"fnval": "1",
		"fourk": "1",
	}, testMixinKey, 1702204169)
	assert.Equal(t, wantQuery, u.lastPlayQuery())

	u.mu.Lock()
	defer u.mu.Unlock()
	assert.Equal(t, Referer, u.referer)
	assert.NotEmpty(t, u.agent)
}

func TestResolveExtractsIDFromShareURL(t *testing.T) {
	u, c := newUpstream(t)

	_, err := c.Resolve(context.Background(), "https://www.bilibili.com/video/BV1xx411c7mD?p=1&t=42")
	require.NoError(t, err)

	u.mu.Lock()
	defer u.mu.Unlock()
	assert.Equal(t, "BV1xx411c7mD", u.viewBvid)
}

func TestResolveCachesMixinKey(t *testing.T) {
	u, c := newUpstream(t)

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)
	_, err = c.Resolve(context.Background(), "BV1xx411c7mD")
	require.NoError(t, err)

	assert.Equal(t, 1, u.count("nav"), "second resolve must reuse the cached mixin key")
	assert.Equal(t, 2, u.count("view"))
	assert.Equal(t, 2, u.count("playurl"))
}

func TestResolveInvalidID(t *testing.T) {
	u, c := newUpstream(t)

	_, err := c.Resolve(context.Background(), "ep123456")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apierr.StatusOf(err))
	assert.Equal(t, "invalid bilibili id", apierr.MessageOf(err))
	assert.Zero(t, u.count("view"), "invalid ids must not hit the upstream")
}

func TestResolvePlayURLEnvelopeError(t *testing.T) {
	u, c := newUpstream(t)
	u.play = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"code":-404,"message":"nothing here","data":{}}`)
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, "playurl error: nothing here", apierr.MessageOf(err))
}

func TestResolveDashOnly(t *testing.T) {
	u, c := newUpstream(t)
	u.play = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w,
			`{"code":0,"message":"0","data":{"durl":[],"dash":{"video":[{"baseUrl":"https://x/seg.m4s"}]}}}`)
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, "DASH format not supported (audio/video separated)", apierr.MessageOf(err))
}

func TestResolveNoStream(t *testing.T) {
	u, c := newUpstream(t)
	u.play = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"code":0,"message":"0","data":{}}`)
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, "no playable stream", apierr.MessageOf(err))
}

func TestResolveRetriesServerErrors(t *testing.T) {
	u, c := newUpstream(t)
	u.view = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.ErrorContains(t, err, "view request failed")
	assert.Equal(t, 2, u.count("view"), "a 5xx answer is retried once")
}

func TestResolveViewParseError(t *testing.T) {
	u, c := newUpstream(t)
	u.view = func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, "not json")
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.ErrorContains(t, err, "view parse failed")
	assert.Equal(t, 1, u.count("view"), "malformed bodies are not retried")
}

func TestResolveNavFailure(t *testing.T) {
	u, c := newUpstream(t)
	u.nav = func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}

	_, err := c.Resolve(context.Background(), "BV1xx411c7mD")
	require.Error(t, err)
	assert.ErrorContains(t, err, "nav request failed")
	assert.Equal(t, 1, u.count("view"), "view succeeds before the nav fetch")
}

func TestNormalizeOptionsDefaults(t *testing.T) {
	opts := normalizeOptions(Options{})
	assert.Equal(t, defaultBaseURL, opts.BaseURL)
	assert.Equal(t, defaultUserAgent, opts.UserAgent)
	assert.Equal(t, defaultTimeout, opts.Timeout)
	assert.Equal(t, defaultRetries, opts.MaxRetries)
	assert.Equal(t, defaultBackoff, opts.Backoff)
	assert.Equal(t, defaultMaxBackoff, opts.MaxBackoff)
	assert.Equal(t, defaultMixinTTL, opts.MixinTTL)
}

func TestBackoffCapped(t *testing.T) {
	c := New(Options{Backoff: time.Second, MaxBackoff: 2 * time.Second})
	for attempt := 0; attempt < 6; attempt++ {
		wait := c.backoffFor(attempt)
		assert.LessOrEqual(t, wait, 2*time.Second+2*time.Second/5+time.Nanosecond)
	}
}
