// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosync/vosync/internal/bili"
	"github.com/vosync/vosync/internal/rooms"
)

// proxyFixture resolves a platform input against a stub CDN and returns the
// media URL the daemon will proxy.
func proxyFixture(t *testing.T, upstream http.HandlerFunc) (*testEnv, string) {
	t.Helper()

	cdn := httptest.NewServer(upstream)
	t.Cleanup(cdn.Close)

	resolver := &stubResolver{resolved: bili.Resolved{PlayURL: cdn.URL + "/video.mp4"}}
	env := newTestEnv(t, rooms.Options{AllowMemberControl: true}, resolver)
	host := env.join("movie-night", "hunter2")

	rec := env.resolve("movie-night", "hunter2", host.TempUser, "BV1xx411c7mD")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resolved := decodeBody[resolveResponse](t, rec)
	require.Equal(t, "bili", resolved.SourceType)

	return env, resolved.URL
}

func TestProxyAttachesPlatformHeaders(t *testing.T) {
	var gotReferer, gotRange, gotAgent string
	env, mediaURL := proxyFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotRange = r.Header.Get("Range")
		gotAgent = r.Header.Get("User-Agent")

		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Range", "bytes 0-3/1000")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("vid!"))
	})

	req := httptest.NewRequest(http.MethodGet, mediaURL, nil)
	req.Header.Set("Range", "bytes=0-3")
	req.Header.Set("User-Agent", "player/1.0")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, bili.Referer, gotReferer)
	assert.Equal(t, "bytes=0-3", gotRange)
	assert.Equal(t, "player/1.0", gotAgent)
	assert.Equal(t, "vid!", rec.Body.String())
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, "bytes 0-3/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
}

func TestProxyRelaysUpstreamStatus(t *testing.T) {
	env, mediaURL := proxyFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("expired link"))
	})

	rec := env.do(http.MethodGet, mediaURL, nil)

	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "expired link", rec.Body.String())
}

func TestProxyUpstreamFailureIsNotFound(t *testing.T) {
	cdn := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	target := cdn.URL
	cdn.Close()

	resolver := &stubResolver{resolved: bili.Resolved{PlayURL: target + "/video.mp4"}}
	env := newTestEnv(t, rooms.Options{AllowMemberControl: true}, resolver)
	host := env.join("movie-night", "hunter2")

	rec := env.resolve("movie-night", "hunter2", host.TempUser, "BV1xx411c7mD")
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[resolveResponse](t, rec)

	stream := env.do(http.MethodGet, resolved.URL, nil)

	require.Equal(t, http.StatusNotFound, stream.Code)
	assert.True(t, strings.HasPrefix(errorMessage(t, stream), "upstream error:"),
		"unexpected error body: %s", stream.Body.String())
}

func TestLocalStreamHonorsRangeRequests(t *testing.T) {
	env := newTestEnv(t, rooms.Options{AllowMemberControl: true}, nil)

	dir := t.TempDir()
	path := writeMediaFile(t, dir, "movie.mp4")
	env.setMediaRoot(dir)
	host := env.join("movie-night", "hunter2")

	rec := env.resolve("movie-night", "hunter2", host.TempUser, path)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decodeBody[resolveResponse](t, rec)

	req := httptest.NewRequest(http.MethodGet, resolved.URL, nil)
	req.Header.Set("Range", "bytes=0-2")
	out := httptest.NewRecorder()
	env.handler.ServeHTTP(out, req)

	require.Equal(t, http.StatusPartialContent, out.Code)
	assert.Equal(t, "not", out.Body.String())
	assert.Equal(t, "bytes 0-2/17", out.Header().Get("Content-Range"))
}
