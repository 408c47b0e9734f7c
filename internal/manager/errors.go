package manager

import "errors"

var (
	// ErrModelNotInstalled is returned by Use when no installed file matches.
	ErrModelNotInstalled = errors.New("model not installed")
	// ErrEmptyModel rejects model operations without a model name.
	ErrEmptyModel = errors.New("model name is required")
)

// IsModelNotInstalled reports whether err indicates a missing model file.
func IsModelNotInstalled(err error) bool { return errors.Is(err, ErrModelNotInstalled) }
