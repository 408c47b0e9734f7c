//go:build !linux

package stream

import (
	"errors"
	"os"
)

func openPTY() (int, *os.File, error) {
	return -1, nil, errors.New("pty streaming is only supported on linux")
}
