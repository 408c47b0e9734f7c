// Package kvstore persists a flat key=value configuration file, the format the
// engine scripts read and write.
package kvstore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrInvalidKey rejects keys the file format cannot represent.
var ErrInvalidKey = errors.New("invalid config key")

// Store is a key=value file. Lines starting with '#' and lines without '='
// are preserved on write and ignored on read.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a Store backed by path. The file does not need to exist.
func New(path string) *Store { return &Store{path: path} }

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// All returns every key/value pair. A missing file is an empty config.
func (s *Store) All() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.readLines()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, l := range lines {
		if k, v, ok := parseLine(l); ok {
			out[k] = v
		}
	}
	return out, nil
}

// Get returns the value for key. Later lines win, as when the file is sourced.
func (s *Store) Get(key string) (string, bool, error) {
	all, err := s.All()
	if err != nil {
		return "", false, err
	}
	v, ok := all[key]
	return v, ok, nil
}

// Set writes key=value, replacing existing assignments of key, and replaces
// the file atomically.
func (s *Store) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if key == "" || strings.ContainsAny(key, "=\n\r#") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)

	s.mu.Lock()
	defer s.mu.Unlock()
	lines, err := s.readLines()
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	written := false
	for _, l := range lines {
		if k, _, ok := parseLine(l); ok && k == key {
			if written {
				continue
			}
			l = key + "=" + value
			written = true
		}
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	if !written {
		buf.WriteString(key + "=" + value + "\n")
	}
	return s.writeAtomic(buf.Bytes())
}

func (s *Store) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return lines, nil
}

func (s *Store) writeAtomic(b []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func parseLine(l string) (key, value string, ok bool) {
	if strings.HasPrefix(l, "#") {
		return "", "", false
	}
	k, v, found := strings.Cut(l, "=")
	if !found {
		return "", "", false
	}
	return k, v, true
}
