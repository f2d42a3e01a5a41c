// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

var testBuf bytes.Buffer

func TestMain(m *testing.M) {
	Configure(Config{Level: "debug", Output: &testBuf, Service: "vosync-test", Version: "dev"})
	os.Exit(m.Run())
}

func lastLogLine(t *testing.T) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(testBuf.Bytes()), []byte("\n"))
	if len(lines) == 0 || len(lines[len(lines)-1]) == 0 {
		t.Fatal("expected at least one log line")
	}
	var fields map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &fields); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	return fields
}

func TestConfigureOnce(t *testing.T) {
	testBuf.Reset()
	// A second Configure must not replace the established logger.
	Configure(Config{Service: "other"})

	l := Base()
	l.Info().Str(FieldEvent, "test.configure").Msg("hello")
	fields := lastLogLine(t)
	if fields["service"] != "vosync-test" {
		t.Errorf("expected service vosync-test, got %v", fields["service"])
	}
	if fields["version"] != "dev" {
		t.Errorf("expected version dev, got %v", fields["version"])
	}
	if fields["event"] != "test.configure" {
		t.Errorf("expected event test.configure, got %v", fields["event"])
	}
}

func TestWithComponent(t *testing.T) {
	testBuf.Reset()
	l := WithComponent("rooms")
	l.Info().Msg("component check")
	fields := lastLogLine(t)
	if fields["component"] != "rooms" {
		t.Errorf("expected component rooms, got %v", fields["component"])
	}
}

func TestDeriveAttachesFields(t *testing.T) {
	testBuf.Reset()
	l := Derive(func(ctx *zerolog.Context) {
		*ctx = ctx.Str(FieldRoom, "movie-night")
	})
	l.Info().Msg("derived")
	fields := lastLogLine(t)
	if fields["room"] != "movie-night" {
		t.Errorf("expected room movie-night, got %v", fields["room"])
	}
}

func TestDeriveNilBuilder(t *testing.T) {
	logger := Derive(nil)
	if logger.GetLevel() > zerolog.PanicLevel {
		t.Error("expected valid logger from Derive with nil builder")
	}
}
