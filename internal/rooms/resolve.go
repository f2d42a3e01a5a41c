// SPDX-License-Identifier: MIT

package rooms

import (
	"context"
	"os"
	"time"

	"github.com/vosync/vosync/internal/apierr"
	"github.com/vosync/vosync/internal/bili"
	"github.com/vosync/vosync/internal/log"
	"github.com/vosync/vosync/internal/mediapath"
	"github.com/vosync/vosync/internal/tokens"
)

// BiliResolver turns a platform video reference into a directly fetchable
// stream. The signing scheme behind it is an external moving target, so the
// registry only depends on this one method.
type BiliResolver interface {
	Resolve(ctx context.Context, input string) (bili.Resolved, error)
}

// ResolvedMedia is the outcome of a successful media resolution: an issued
// token plus the metadata the caller needs to start playback.
type ResolvedMedia struct {
	Token      string
	URL        string
	SourceType string
	Cover      *string
	ExpiresAt  time.Time
}

// ResolveMediaPath authenticates the caller against the room, classifies the
// input and issues a media token for it. The room lock is released before
// any network or filesystem work.
//
// Non-hosts may resolve only while member control is enabled.
func (r *Registry) ResolveMediaPath(ctx context.Context, name, password, tempUser, path string) (ResolvedMedia, error) {
	r.mu.RLock()
	rm, ok := r.rooms[name]
	if !ok {
		r.mu.RUnlock()
		return ResolvedMedia{}, apierr.BadRequest("room not found")
	}
	if rm.password != password {
		r.mu.RUnlock()
		return ResolvedMedia{}, apierr.Forbidden("room password mismatch")
	}
	if rm.hostID != tempUser && !r.allowMemberControl.Load() {
		r.mu.RUnlock()
		return ResolvedMedia{}, apierr.Forbidden("operation allowed for host only")
	}
	r.mu.RUnlock()

	switch mediapath.Classify(path) {
	case mediapath.KindBili:
		return r.resolvePlatform(ctx, name, path)
	case mediapath.KindRemote:
		return r.resolveRemote(name, path), nil
	default:
		return r.resolveLocal(name, path)
	}
}

func (r *Registry) resolvePlatform(ctx context.Context, name, input string) (ResolvedMedia, error) {
	if r.bili == nil {
		return ResolvedMedia{}, apierr.BadRequest("platform resolver unavailable")
	}

	resolved, err := r.bili.Resolve(ctx, input)
	if err != nil {
		return ResolvedMedia{}, err
	}

	token, expires := r.tokens.IssueRemote(resolved.PlayURL, tokens.ProxyWithHeaders)
	r.logResolved(name, "bili", token)

	return ResolvedMedia{
		Token:      token,
		URL:        "/media/" + token,
		SourceType: "bili",
		Cover:      resolved.Cover,
		ExpiresAt:  expires,
	}, nil
}

func (r *Registry) resolveRemote(name, url string) ResolvedMedia {
	token, expires := r.tokens.IssueRemote(url, tokens.Redirect)
	r.logResolved(name, "remote", token)

	return ResolvedMedia{
		Token:      token,
		URL:        "/media/" + token,
		SourceType: "remote",
		ExpiresAt:  expires,
	}
}

func (r *Registry) resolveLocal(name, path string) (ResolvedMedia, error) {
	root := r.MediaRoot()
	if root == "" {
		return ResolvedMedia{}, apierr.BadRequest("media root not configured")
	}

	clean := mediapath.Clean(path)
	if mediapath.HasTraversal(path) || !mediapath.IsUnderRoot(clean, root) {
		r.logger.Warn().
			Str(log.FieldEvent, "resolve.denied").
			Str(log.FieldRoom, name).
			Str(log.FieldPath, clean).
			Str(log.FieldMediaRoot, root).
			Msg("media path escapes media root")
		return ResolvedMedia{}, apierr.Forbidden("media path forbidden")
	}

	info, err := os.Stat(clean)
	if err != nil {
		return ResolvedMedia{}, apierr.BadRequest("invalid path")
	}
	if info.IsDir() {
		return ResolvedMedia{}, apierr.BadRequest("path is directory")
	}

	token, expires := r.tokens.IssueLocal(clean)
	r.logResolved(name, "file", token)

	return ResolvedMedia{
		Token:      token,
		URL:        "/media/" + token,
		SourceType: "file",
		ExpiresAt:  expires,
	}, nil
}

func (r *Registry) logResolved(name, sourceType, token string) {
	r.logger.Debug().
		Str(log.FieldEvent, "resolve.issued").
		Str(log.FieldRoom, name).
		Str(log.FieldSourceType, sourceType).
		Str(log.FieldToken, token).
		Msg("media token issued")
}
