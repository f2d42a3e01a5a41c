// SPDX-License-Identifier: MIT

// Package mediapath classifies playback inputs and canonicalizes local
// filesystem paths before they are bound to media tokens.
package mediapath

import (
	"strings"
	"unicode"
)

// Kind is the coarse classification of a playback input.
type Kind int

const (
	// KindLocal is a filesystem path served from the media root.
	KindLocal Kind = iota
	// KindRemote is a generic http(s) URL the player fetches directly.
	KindRemote
	// KindBili is a bilibili video reference that needs resolving.
	KindBili
)

// String returns the sourceType a resolved input of this kind carries.
func (k Kind) String() string {
	switch k {
	case KindRemote:
		return "remote"
	case KindBili:
		return "bili"
	default:
		return "file"
	}
}

// Classify decides how a playback input should be resolved. Bare video ids
// (BV/ep prefixes) and bilibili URLs go to the platform resolver, other
// http(s) URLs are passed through as remote sources, everything else is
// treated as a local path.
func Classify(input string) Kind {
	if strings.HasPrefix(input, "BV") ||
		strings.HasPrefix(input, "bv") ||
		strings.HasPrefix(input, "ep") ||
		strings.HasPrefix(input, "EP") {
		return KindBili
	}
	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		if strings.Contains(input, "bilibili.com") || strings.Contains(input, "bilivideo.com") {
			return KindBili
		}
		return KindRemote
	}
	return KindLocal
}

// ExtractBvid pulls a BV id out of an arbitrary input such as a share URL.
// It scans from the first "BV" marker, collecting alphanumerics up to the
// canonical 12 characters, and accepts the result when at least 10 long.
// A bare id that already has the right shape is returned as-is.
func ExtractBvid(input string) (string, bool) {
	if idx := strings.Index(input, "BV"); idx >= 0 {
		var bvid []rune
		for _, c := range input[idx:] {
			if unicode.IsLetter(c) || unicode.IsDigit(c) {
				bvid = append(bvid, c)
				if len(bvid) >= 12 {
					break
				}
			} else if len(bvid) > 0 {
				break
			}
		}
		if len(bvid) >= 10 && strings.HasPrefix(string(bvid), "BV") {
			return string(bvid), true
		}
	}
	if strings.HasPrefix(input, "BV") && len(input) >= 10 {
		return input, true
	}
	return "", false
}

// LastSegment returns the portion of s after the final '/'. It is used as
// the provisional title for freshly resolved media.
func LastSegment(s string) string {
	if idx := strings.LastIndexByte(s, '/'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
