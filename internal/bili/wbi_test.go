// SPDX-License-Identifier: MIT

package bili

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testImgKey = "7cd084941338484aae1ad9425b84077c"
	testSubKey = "4932caff0ff746eab6f01bf08b70ac45"
	// testMixinKey is the documented derivation for the two keys above.
	testMixinKey = "ea1db124af3c7062474693fa704f4ff8"
)

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "wbi image url",
			url:  "https://i0.hdslb.com/bfs/wbi/7cd084941338484aae1ad9425b84077c.png",
			want: testImgKey,
		},
		{
			name: "no extension",
			url:  "https://example.com/path/key",
			want: "key",
		},
		{
			name: "multiple dots keeps prefix",
			url:  "https://example.com/a.b.c.png",
			want: "a",
		},
		{
			name: "empty",
			url:  "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, keyFromURL(tt.url))
		})
	}
}

func TestDeriveMixinKey(t *testing.T) {
	got := deriveMixinKey(testImgKey + testSubKey)
	assert.Equal(t, testMixinKey, got)
	assert.Len(t, got, 32)
}

func TestDeriveMixinKeyShortSource(t *testing.T) {
	// Indexes past the end of the source are skipped, so a short source
	// yields a short key instead of panicking.
	assert.Equal(t, "2835970146", deriveMixinKey("0123456789"))
	assert.Equal(t, "", deriveMixinKey(""))
}

func TestCleanValue(t *testing.T) {
	assert.Equal(t, "abcdef", cleanValue("a'b!c(d)e*f"))
	assert.Equal(t, "hello world", cleanValue("hello world"))
	assert.Equal(t, "", cleanValue("!!!"))
}

func TestPercentEncode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"alphanumeric untouched", "abcXYZ019", "abcXYZ019"},
		{"unreserved marks escaped", "-_.~", "%2D%5F%2E%7E"},
		{"space", "a b", "a%20b"},
		{"slash", "a/b", "a%2Fb"},
		{"utf8", "中", "%E4%B8%AD"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, percentEncode(tt.in))
		})
	}
}

func TestSignQuery(t *testing.T) {
	params := map[string]string{
		"foo": "one/two!",
		"bar": "五一四",
		"zab": "1919810",
	}
	got := signQuery(params, testMixinKey, 1702204169)

	wantEncoded := "bar=%E4%BA%94%E4%B8%80%E5%9B%9B&foo=one%2Ftwo&wts=1702204169&zab=1919810"
	require.True(t, strings.HasPrefix(got, wantEncoded+"&w_rid="), "unexpected query: %s", got)

	sig := strings.TrimPrefix(got, wantEncoded+"&w_rid=")
	require.Len(t, sig, 32)
	_, err := hex.DecodeString(sig)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(sig), sig, "signature must be lowercase hex")
}

func TestSignQueryDeterministic(t *testing.T) {
	params := map[string]string{"bvid": "BV1xx411c7mD", "cid": "1176840"}
	first := signQuery(params, testMixinKey, 1702204169)
	second := signQuery(params, testMixinKey, 1702204169)
	assert.Equal(t, first, second)
}

func TestSignQueryKeySensitive(t *testing.T) {
	params := map[string]string{"bvid": "BV1xx411c7mD"}
	a := signQuery(params, testMixinKey, 1702204169)
	b := signQuery(params, "0123456789abcdef0123456789abcdef", 1702204169)
	assert.NotEqual(t, a, b)
}

func TestSignQueryDoesNotMutateParams(t *testing.T) {
	params := map[string]string{"foo": "ba!r"}
	_ = signQuery(params, testMixinKey, 1)
	assert.Equal(t, "ba!r", params["foo"])
	_, hasWts := params["wts"]
	assert.False(t, hasWts)
}
