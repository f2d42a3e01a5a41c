// SPDX-License-Identifier: MIT

package api

import (
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/bili"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/metrics"
	"github.com/vosync/vosync/internal/tokens"
)

// relayedHeaders are the upstream response headers a proxied stream keeps,
// enough for players to seek and size their buffers.
var relayedHeaders = []string{"Content-Type", "Content-Length", "Accept-Ranges", "Content-Range"}

// handleMediaStream redeems a media token. Remote tokens either redirect
// the player or relay the bytes through the daemon; local tokens serve the
// file with range support. The token kind is not known up front, so the
// remote redemption is tried first and the local one is the fallback.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")

	if remote, err := s.rooms.OpenRemote(token); err == nil {
		if remote.Strategy == tokens.ProxyWithHeaders {
			s.proxyUpstream(w, r, remote.URL)
			return
		}
		w.Header().Set("Location", remote.URL)
		w.WriteHeader(http.StatusTemporaryRedirect)
		metrics.RecordMediaRequest("redirect", http.StatusTemporaryRedirect)
		return
	}

	path, err := s.rooms.OpenLocal(token)
	if err != nil {
		metrics.RecordMediaRequest("denied", apierr.StatusOf(err))
		writeError(w, r, err)
		return
	}
	s.serveLocal(w, r, path)
}

// proxyUpstream relays the target through the daemon so the platform
// Referer and the client's Range header can be attached. The upstream
// status is passed through untouched; partial-content replies stay partial.
func (s *Server) proxyUpstream(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		metrics.RecordMediaRequest("proxy", http.StatusNotFound)
		writeError(w, r, apierr.NotFoundf("upstream error: %v", err))
		return
	}
	req.Header.Set("Referer", bili.Referer)
	if ua := r.Header.Get("User-Agent"); ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}

	resp, err := s.upstream.Do(req)
	if err != nil {
		metrics.RecordMediaRequest("proxy", http.StatusNotFound)
		writeError(w, r, apierr.NotFoundf("upstream error: %v", err))
		return
	}
	defer func() { _ = resp.Body.Close() }()

	for _, name := range relayedHeaders {
		if v := resp.Header.Get(name); v != "" {
			w.Header().Set(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)

	written, err := io.Copy(w, resp.Body)
	metrics.AddMediaProxyBytes("client", written)
	metrics.RecordMediaRequest("proxy", resp.StatusCode)
	if err != nil {
		// Players abort and reissue range requests while seeking.
		logger := log.WithComponentFromContext(r.Context(), "api")
		logger.Debug().Err(err).
			Str(log.FieldEvent, "stream.proxy_interrupted").
			Int64("bytes", written).
			Msg("proxy copy interrupted")
	}
}

// serveLocal streams a file from disk. ServeContent brings range and
// If-Modified-Since handling, which local playback needs for seeking.
func (s *Server) serveLocal(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path)
	if err != nil {
		metrics.RecordMediaRequest("local", http.StatusNotFound)
		writeError(w, r, apierr.NotFound("media not found"))
		return
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		metrics.RecordMediaRequest("local", http.StatusNotFound)
		writeError(w, r, apierr.NotFound("media not found"))
		return
	}

	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	http.ServeContent(ww, r, info.Name(), info.ModTime(), f)
	metrics.RecordMediaRequest("local", ww.Status())
}
