package httpapi

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRequestLogLevel_Overrides(t *testing.T) {
	cases := []struct {
		url, header string
		want        zerolog.Level
		ok          bool
	}{
		{url: "/x?log=debug", want: zerolog.DebugLevel, ok: true},
		{url: "/x?log=1", want: zerolog.DebugLevel, ok: true},
		{url: "/x?log=off", want: zerolog.Disabled, ok: true},
		{url: "/x", header: "error", want: zerolog.ErrorLevel, ok: true},
		{url: "/x?log=weird"},
		{url: "/x"},
	}
	for _, c := range cases {
		r := httptest.NewRequest("GET", c.url, nil)
		if c.header != "" {
			r.Header.Set("X-Log-Level", c.header)
		}
		got, ok := requestLogLevel(r)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("%s [%s]: got %v,%v want %v,%v", c.url, c.header, got, ok, c.want, c.ok)
		}
	}
}

func TestLoggingLineWriter_SplitsLines(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf).Level(zerolog.DebugLevel)

	lw := &loggingLineWriter{log: &l}
	_, _ = lw.Write([]byte("data: a\n\ndata: par"))
	_, _ = lw.Write([]byte("tial\n\n"))

	out := buf.String()
	if strings.Count(out, "\n") != 2 {
		t.Fatalf("expected two log lines, got %q", out)
	}
	if !strings.Contains(out, `"line":"data: a"`) || !strings.Contains(out, `"line":"data: partial"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
}
