// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbdump

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"
)

// writeOptionFile renders a [client] section for the MySQL tools into a
// new private temp file and returns its path. The caller removes it.
func (m *MySQL) writeOptionFile() (string, error) {
	file := ini.Empty(ini.LoadOptions{IgnoreInlineComment: true})
	section, err := file.NewSection("client")
	if err != nil {
		return "", err
	}

	values := [][2]string{
		{"host", m.host()},
		{"port", strconv.Itoa(m.port())},
		{"user", m.User},
	}
	if m.Password != nil && m.Password.Len() > 0 {
		quoted, err := quoteOptionValue(m.Password.String())
		if err != nil {
			return "", err
		}
		values = append(values, [2]string{"password", quoted})
	}
	for _, value := range values {
		if value[1] == "" {
			continue
		}
		if _, err := section.NewKey(value[0], value[1]); err != nil {
			return "", fmt.Errorf("option %s: %w", value[0], err)
		}
	}

	temporary, err := os.CreateTemp("", "quartermaster-mysql-*.cnf")
	if err != nil {
		return "", fmt.Errorf("creating option file: %w", err)
	}
	path := temporary.Name()
	if err := temporary.Chmod(0600); err != nil {
		temporary.Close()
		os.Remove(path)
		return "", fmt.Errorf("securing option file: %w", err)
	}
	if _, err := file.WriteTo(temporary); err != nil {
		temporary.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing option file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing option file: %w", err)
	}
	return path, nil
}

// quoteOptionValue double-quotes a value for a MySQL option file. The
// MySQL parser strips the outer quotes and then decodes backslash
// escapes, so only backslashes need escaping. Inline "#" and ";" are
// safe inside quotes.
func quoteOptionValue(value string) (string, error) {
	if strings.ContainsAny(value, "\n\r`") {
		return "", fmt.Errorf("password contains a newline or backtick, which a MySQL option file cannot carry")
	}
	return `"` + strings.ReplaceAll(value, `\`, `\\`) + `"`, nil
}
