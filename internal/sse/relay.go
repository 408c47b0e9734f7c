// Package sse frames a chunk sequence as a server-sent event stream.
package sse

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode/utf8"
)

// Source is a pull-based chunk sequence such as *stream.Stream.
type Source interface {
	Next() ([]byte, error)
}

type tokenEvent struct {
	Token string `json:"token"`
}

type doneEvent struct {
	Done         bool   `json:"done"`
	FullResponse string `json:"full_response"`
}

type errorEvent struct {
	Error string `json:"error"`
}

// WriteEvent writes v as one "data: <json>\n\n" frame and flushes.
func WriteEvent(w io.Writer, flush func(), v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(b)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, b...)
	buf = append(buf, '\n', '\n')
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

// WriteError writes a single error event, ignoring write failures.
func WriteError(w io.Writer, flush func(), msg string) {
	_ = WriteEvent(w, flush, errorEvent{Error: msg})
}

// Relay pulls src until it ends and writes one token event per chunk followed
// by exactly one done event carrying the full text. It returns the text
// relayed so far and:
//
//   - nil when the source ended normally (EOF, timeout, cancellation) and the
//     done event was written;
//   - the write error when the client went away; src is not pulled again;
//   - the source error for any other failure, after a best-effort error event.
func Relay(w io.Writer, flush func(), src Source) (string, error) {
	var (
		full    strings.Builder
		pending []byte
	)
	for {
		chunk, err := src.Next()
		if len(chunk) > 0 {
			text, rest := decode(append(pending, chunk...))
			pending = rest
			if text != "" {
				full.WriteString(text)
				if werr := WriteEvent(w, flush, tokenEvent{Token: text}); werr != nil {
					return full.String(), werr
				}
			}
		}
		if err == nil {
			continue
		}
		if !endsNormally(err) {
			WriteError(w, flush, err.Error())
			return full.String(), err
		}
		if len(pending) > 0 {
			text := strings.ToValidUTF8(string(pending), string(utf8.RuneError))
			full.WriteString(text)
			if werr := WriteEvent(w, flush, tokenEvent{Token: text}); werr != nil {
				return full.String(), werr
			}
		}
		if werr := WriteEvent(w, flush, doneEvent{Done: true, FullResponse: full.String()}); werr != nil {
			return full.String(), werr
		}
		return full.String(), nil
	}
}

// decode returns the valid text in b with invalid bytes replaced by U+FFFD,
// holding back a trailing incomplete rune so it can be completed by the next
// chunk.
func decode(b []byte) (string, []byte) {
	cut := len(b)
	// a rune is at most utf8.UTFMax bytes; look back that far for a start byte
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if !utf8.FullRune(b[i:]) {
				cut = i
			}
			break
		}
	}
	var rest []byte
	if cut < len(b) {
		rest = append([]byte(nil), b[cut:]...)
	}
	return strings.ToValidUTF8(string(b[:cut]), string(utf8.RuneError)), rest
}

func endsNormally(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
