// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// ReadFromPath reads a secret from a file, or from stdin when path is
// "-". Surrounding whitespace is trimmed. An empty secret is an error.
func ReadFromPath(path string) (*Buffer, error) {
	var data []byte
	if path == "-" {
		line, err := readLine(os.Stdin)
		if err != nil {
			return nil, err
		}
		data = line
	} else {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, err
		}
	}
	return fromTrimmed(data)
}

// ReadPassword prompts on stderr and reads one line from stdin. When
// stdin is a terminal, echo is disabled while the password is typed.
func ReadPassword(prompt string) (*Buffer, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		return fromTrimmed(data)
	}
	line, err := readLine(os.Stdin)
	if err != nil {
		return nil, err
	}
	return fromTrimmed(line)
}

func readLine(reader io.Reader) ([]byte, error) {
	scanner := bufio.NewScanner(reader)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return nil, fmt.Errorf("stdin is empty")
	}
	// The scanner's buffer is reused; copy out before it is overwritten.
	return bytes.Clone(scanner.Bytes()), nil
}

func fromTrimmed(data []byte) (*Buffer, error) {
	defer Zero(data)
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret is empty")
	}
	return NewFromBytes(trimmed)
}
