// SPDX-License-Identifier: MIT

package rooms

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/bili"
	"github.com/vosync/vosync/internal/mediapath"
	"github.com/vosync/vosync/internal/tokens"
)

type fakeResolver struct {
	mu       sync.Mutex
	calls    []string
	resolved bili.Resolved
	err      error
}

func (f *fakeResolver) Resolve(_ context.Context, input string) (bili.Resolved, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, input)
	if f.err != nil {
		return bili.Resolved{}, f.err
	}
	return f.resolved, nil
}

func newResolverRegistry(t *testing.T, resolver BiliResolver) *Registry {
	t.Helper()
	r := NewRegistry(Options{
		RoomTTL:            30 * time.Minute,
		TokenTTL:           time.Hour,
		SweepInterval:      time.Minute,
		AllowMemberControl: true,
	}, resolver)
	t.Cleanup(r.Stop)
	return r
}

func TestResolveUnknownRoom(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.ResolveMediaPath(context.Background(), "ghost", "pw", "user", "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, 400, apierr.StatusOf(err))
	assert.Equal(t, "room not found", apierr.MessageOf(err))
}

func TestResolvePasswordMismatch(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "wrong", host, "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusOf(err))
	assert.Equal(t, "room password mismatch", apierr.MessageOf(err))
}

func TestResolveMemberBlockedWhenControlOff(t *testing.T) {
	fake := &fakeResolver{resolved: bili.Resolved{PlayURL: "https://cdn.example/v.mp4"}}
	r := newResolverRegistry(t, fake)

	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)
	member, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	r.SetAllowMemberControl(false)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", member, "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusOf(err))
	assert.Equal(t, "operation allowed for host only", apierr.MessageOf(err))

	// The host is never subject to the policy.
	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "BV1xx411c7mD")
	require.NoError(t, err)
}

func TestResolveMemberAllowedByDefault(t *testing.T) {
	r := newTestRegistry(t)
	_, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)
	member, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	got, err := r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", member, "https://example.com/movie.mp4")
	require.NoError(t, err)
	assert.Equal(t, "remote", got.SourceType)
}

func TestResolveRemote(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	got, err := r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "https://example.com/movie.mp4")
	require.NoError(t, err)

	assert.Equal(t, "remote", got.SourceType)
	assert.Equal(t, "/media/"+got.Token, got.URL)
	assert.Nil(t, got.Cover)
	assert.WithinDuration(t, time.Now().Add(time.Hour), got.ExpiresAt, 5*time.Second)

	remote, err := r.OpenRemote(got.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/movie.mp4", remote.URL)
	assert.Equal(t, tokens.Redirect, remote.Strategy)

	// Remote tokens cannot be redeemed as local files.
	_, err = r.OpenLocal(got.Token)
	require.Error(t, err)
	assert.Equal(t, "remote requires redirect", apierr.MessageOf(err))
}

func TestResolveLocal(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	root := t.TempDir()
	file := filepath.Join(root, "movie.mkv")
	require.NoError(t, os.WriteFile(file, []byte("data"), 0o600))
	_, err = r.SetMediaRoot(root)
	require.NoError(t, err)

	got, err := r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, file)
	require.NoError(t, err)
	assert.Equal(t, "file", got.SourceType)
	assert.Equal(t, "/media/"+got.Token, got.URL)

	path, err := r.OpenLocal(got.Token)
	require.NoError(t, err)
	assert.Equal(t, mediapath.Clean(file), path)

	_, err = r.OpenRemote(got.Token)
	require.Error(t, err)
	assert.Equal(t, "not a remote token", apierr.MessageOf(err))
}

func TestResolveLocalWithoutRoot(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "/tmp/movie.mkv")
	require.Error(t, err)
	assert.Equal(t, 400, apierr.StatusOf(err))
	assert.Equal(t, "media root not configured", apierr.MessageOf(err))
}

func TestResolveLocalEscapesRoot(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	base := t.TempDir()
	root := filepath.Join(base, "media")
	require.NoError(t, os.Mkdir(root, 0o750))
	outside := filepath.Join(base, "secret.mkv")
	require.NoError(t, os.WriteFile(outside, []byte("data"), 0o600))
	_, err = r.SetMediaRoot(root)
	require.NoError(t, err)

	// The file exists, but it sits outside the media root.
	escape := filepath.Join(root, "..", "secret.mkv")
	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, escape)
	require.Error(t, err)
	assert.Equal(t, 403, apierr.StatusOf(err))
	assert.Equal(t, "media path forbidden", apierr.MessageOf(err))
}

func TestResolveLocalMissingFile(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	root := t.TempDir()
	_, err = r.SetMediaRoot(root)
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, filepath.Join(root, "nope.mkv"))
	require.Error(t, err)
	assert.Equal(t, 400, apierr.StatusOf(err))
	assert.Equal(t, "invalid path", apierr.MessageOf(err))
}

func TestResolveLocalDirectory(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	root := t.TempDir()
	sub := filepath.Join(root, "season-1")
	require.NoError(t, os.Mkdir(sub, 0o750))
	_, err = r.SetMediaRoot(root)
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, sub)
	require.Error(t, err)
	assert.Equal(t, 400, apierr.StatusOf(err))
	assert.Equal(t, "path is directory", apierr.MessageOf(err))
}

func TestResolvePlatform(t *testing.T) {
	fake := &fakeResolver{resolved: bili.Resolved{
		PlayURL: "https://cn-gotcha.bilivideo.com/video.mp4",
		Cover:   strPtr("https://i0.hdslb.com/cover.jpg"),
	}}
	r := newResolverRegistry(t, fake)

	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	got, err := r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "BV1xx411c7mD")
	require.NoError(t, err)

	assert.Equal(t, "bili", got.SourceType)
	assert.Equal(t, "/media/"+got.Token, got.URL)
	require.NotNil(t, got.Cover)
	assert.Equal(t, "https://i0.hdslb.com/cover.jpg", *got.Cover)

	remote, err := r.OpenRemote(got.Token)
	require.NoError(t, err)
	assert.Equal(t, "https://cn-gotcha.bilivideo.com/video.mp4", remote.URL)
	assert.Equal(t, tokens.ProxyWithHeaders, remote.Strategy)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"BV1xx411c7mD"}, fake.calls)
}

func TestResolvePlatformURLInput(t *testing.T) {
	fake := &fakeResolver{resolved: bili.Resolved{PlayURL: "https://cdn.example/v.mp4"}}
	r := newResolverRegistry(t, fake)

	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	// bilibili URLs are classified as platform references, not generic remotes.
	input := "https://www.bilibili.com/video/BV1xx411c7mD"
	got, err := r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, input)
	require.NoError(t, err)
	assert.Equal(t, "bili", got.SourceType)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{input}, fake.calls)
}

func TestResolvePlatformError(t *testing.T) {
	fake := &fakeResolver{err: apierr.BadRequest("playurl error: rate limited")}
	r := newResolverRegistry(t, fake)

	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, "playurl error: rate limited", apierr.MessageOf(err))
	assert.Zero(t, r.TokenCount(), "failed resolutions must not leak tokens")
}

func TestResolvePlatformWithoutResolver(t *testing.T) {
	r := newTestRegistry(t)
	host, _, err := r.Join("movie-night", "hunter2")
	require.NoError(t, err)

	_, err = r.ResolveMediaPath(context.Background(), "movie-night", "hunter2", host, "BV1xx411c7mD")
	require.Error(t, err)
	assert.Equal(t, 400, apierr.StatusOf(err))
	assert.Equal(t, "platform resolver unavailable", apierr.MessageOf(err))
}
