// Copyright 2026 The Capone Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath reads a key, in hex, from a file path, or from stdin if
// path is "-" — the form capone-keygen writes and LoadSignKeyPair
// reads back. The returned buffer is mmap-backed and must be closed by
// the caller. Leading and trailing whitespace (typically a trailing
// newline) is trimmed before storing.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte

	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, fmt.Errorf("secret: reading stdin: %w", err)
			}
			return nil, fmt.Errorf("secret: stdin is empty")
		}
		data = scanner.Bytes()
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("secret: reading %s: %w", path, err)
		}
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		zero(data)
		return nil, fmt.Errorf("secret: %s is empty", path)
	}

	buffer, err := NewFromBytes(trimmed)
	zero(data)
	if err != nil {
		return nil, err
	}
	return buffer, nil
}
