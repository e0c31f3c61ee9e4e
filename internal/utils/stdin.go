package utils

import (
	"io"
	"os"
	"strings"
)

// ReadPiped reads f to the end when it is a pipe or a non-empty file.
// A terminal yields "" without blocking.
func ReadPiped(f *os.File) (string, error) {
	stat, err := f.Stat()
	if err != nil {
		return "", err
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	if stat.Mode().IsRegular() && stat.Size() == 0 {
		return "", nil
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
