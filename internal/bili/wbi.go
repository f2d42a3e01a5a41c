// SPDX-License-Identifier: MIT

package bili

import (
	"crypto/md5" // #nosec G501 -- the playurl API signs requests with md5
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/vosync/vosync/internal/mediapath"
)

// mixinKeyTable is the published reorder table that turns the concatenated
// img and sub keys from the nav endpoint into the signing key.
var mixinKeyTable = [64]int{
	46, 47, 18, 2, 53, 8, 23, 32, 15, 50, 10, 31, 58, 3, 45, 35,
	27, 43, 5, 49, 33, 9, 42, 19, 29, 28, 14, 39, 12, 38, 41, 13,
	37, 48, 7, 16, 24, 55, 40, 61, 26, 17, 0, 1, 60, 51, 30, 4,
	22, 25, 54, 21, 56, 59, 6, 63, 57, 62, 11, 36, 20, 34, 44, 52,
}

// keyFromURL extracts the wbi key carried in a nav image URL: the last path
// segment with the extension stripped at the first '.'.
func keyFromURL(u string) string {
	seg := mediapath.LastSegment(u)
	if i := strings.IndexByte(seg, '.'); i >= 0 {
		seg = seg[:i]
	}
	return seg
}

// deriveMixinKey reorders the concatenated img and sub keys through
// mixinKeyTable and keeps the first 32 characters. Indexes past the end of
// the source are skipped.
func deriveMixinKey(source string) string {
	runes := []rune(source)
	key := make([]rune, 0, 32)
	for _, idx := range mixinKeyTable {
		if idx >= len(runes) {
			continue
		}
		key = append(key, runes[idx])
		if len(key) == 32 {
			break
		}
	}
	return string(key)
}

// cleanValue strips the characters the signer refuses in parameter values.
func cleanValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '\'', '!', '(', ')', '*':
			return -1
		}
		return r
	}, s)
}

const upperhex = "0123456789ABCDEF"

// percentEncode escapes every byte outside 0-9A-Za-z as uppercase %XX.
// The signature covers the NON_ALPHANUMERIC set, which also escapes the
// unreserved marks that url.QueryEscape leaves bare.
func percentEncode(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if '0' <= c && c <= '9' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&0x0f])
	}
	return b.String()
}

// signQuery canonicalizes params, stamps them with wts, and appends the
// w_rid signature. The result is ready to use as a raw query string.
func signQuery(params map[string]string, mixinKey string, wts int64) string {
	merged := make(map[string]string, len(params)+1)
	for k, v := range params {
		merged[k] = cleanValue(v)
	}
	merged["wts"] = strconv.FormatInt(wts, 10)

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, percentEncode(k)+"="+percentEncode(merged[k]))
	}
	encoded := strings.Join(pairs, "&")

	sum := md5.Sum([]byte(encoded + mixinKey)) // #nosec G401 -- request signing, not password hashing
	return encoded + "&w_rid=" + hex.EncodeToString(sum[:])
}
