// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbdump

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/ini.v1"

	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

func password(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(value))
	if err != nil {
		t.Fatalf("secret buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// fakeClient writes a shell script that records its arguments and the
// option file it was given, then prints stdout. It stands in for
// mysqldump and mysql.
func fakeClient(t *testing.T, stdout string, exitCode int) (binary, record string) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	directory := t.TempDir()
	record = filepath.Join(directory, "record")
	binary = filepath.Join(directory, "client")
	script := `#!/bin/sh
option_file="${1#--defaults-extra-file=}"
{
  echo "ARGS $*"
  echo "MODE $(stat -c %a "$option_file")"
  cat "$option_file"
  echo "STDIN"
  cat
} > ` + record + `
printf '%s' '` + stdout + `'
echo "client complaint" >&2
exit ` + string(rune('0'+exitCode)) + `
`
	if err := os.WriteFile(binary, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	return binary, record
}

func readRecord(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading client record: %v", err)
	}
	return string(data)
}

func TestValidateOptions(t *testing.T) {
	tests := []struct {
		options []string
		wantErr bool
	}{
		{nil, false},
		{DefaultOptions, false},
		{[]string{"--set-gtid-purged=OFF", "--column-statistics=0", "--hex-blob"}, false},
		{[]string{"--single-transaction", "--result-file=/etc/passwd"}, true},
		{[]string{"--password=hunter2"}, true},
		{[]string{"-p"}, true},
	}
	for _, test := range tests {
		err := ValidateOptions(test.options)
		if (err != nil) != test.wantErr {
			t.Errorf("ValidateOptions(%v) error = %v, wantErr %v", test.options, err, test.wantErr)
		}
	}
}

func TestOptionFile(t *testing.T) {
	mysql := &MySQL{Host: "db.internal", Port: 3307, User: "backup", Password: password(t, `p#ss;w\rd "x"`)}
	path, err := mysql.writeOptionFile()
	if err != nil {
		t.Fatalf("writeOptionFile: %v", err)
	}
	defer os.Remove(path)

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("option file mode = %v, want 0600", info.Mode().Perm())
	}

	file, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true, PreserveSurroundedQuote: true}, path)
	if err != nil {
		t.Fatalf("parsing option file: %v", err)
	}
	client := file.Section("client")
	if got := client.Key("host").String(); got != "db.internal" {
		t.Errorf("host = %q", got)
	}
	if got := client.Key("port").MustInt(0); got != 3307 {
		t.Errorf("port = %d", got)
	}
	if got := client.Key("user").String(); got != "backup" {
		t.Errorf("user = %q", got)
	}
	// MySQL strips the outer quotes and decodes \\ itself.
	if got, want := client.Key("password").String(), `"p#ss;w\\rd "x""`; got != want {
		t.Errorf("password line = %s, want %s", got, want)
	}
}

func TestOptionFileDefaults(t *testing.T) {
	path, err := (&MySQL{User: "root"}).writeOptionFile()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	for _, want := range []string{"[client]", "localhost", "3306", "root"} {
		if !strings.Contains(text, want) {
			t.Errorf("option file missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "password") {
		t.Errorf("option file has a password line without a password:\n%s", text)
	}
}

func TestQuoteOptionValueRejectsNewline(t *testing.T) {
	if _, err := quoteOptionValue("a\nb"); err == nil {
		t.Error("newline accepted")
	}
}

func TestDump(t *testing.T) {
	binary, record := fakeClient(t, "-- dump of shop", 0)
	mysql := &MySQL{User: "backup", Password: password(t, "s3cret"), DumpBinary: binary}

	var output bytes.Buffer
	if err := mysql.Dump(context.Background(), "shop", &output); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if output.String() != "-- dump of shop" {
		t.Errorf("dump output = %q", output.String())
	}

	log := readRecord(t, record)
	args := strings.SplitN(log, "\n", 2)[0]
	if !strings.HasPrefix(args, "ARGS --defaults-extra-file=") {
		t.Errorf("option file is not the first argument: %s", args)
	}
	if !strings.HasSuffix(args, "--single-transaction --routines --triggers --events --quick shop") {
		t.Errorf("unexpected arguments: %s", args)
	}
	if strings.Contains(args, "s3cret") {
		t.Error("password appeared on the command line")
	}
	if !strings.Contains(log, "MODE 600") {
		t.Errorf("option file was not private:\n%s", log)
	}
	if !strings.Contains(log, `"s3cret"`) {
		t.Errorf("option file did not carry the password:\n%s", log)
	}

	// The option file is gone once the command finishes.
	optionFile := strings.TrimPrefix(strings.Fields(args)[1], "--defaults-extra-file=")
	if _, err := os.Stat(optionFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("option file %s left behind", optionFile)
	}
}

func TestDumpRejectsOptions(t *testing.T) {
	binary, record := fakeClient(t, "", 0)
	mysql := &MySQL{User: "root", DumpBinary: binary, Options: []string{"--result-file=/tmp/x"}}
	if err := mysql.Dump(context.Background(), "shop", &bytes.Buffer{}); err == nil {
		t.Fatal("Dump accepted a disallowed option")
	}
	if _, err := os.Stat(record); err == nil {
		t.Error("client ran despite a disallowed option")
	}
}

func TestDumpFailureIncludesStderr(t *testing.T) {
	binary, _ := fakeClient(t, "", 2)
	mysql := &MySQL{User: "root", DumpBinary: binary}
	err := mysql.Dump(context.Background(), "shop", &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "client complaint") {
		t.Errorf("Dump error = %v, want stderr included", err)
	}
}

func TestDumpTimeout(t *testing.T) {
	directory := t.TempDir()
	binary := filepath.Join(directory, "slow")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\nexec sleep 30\n"), 0755); err != nil {
		t.Fatal(err)
	}
	mysql := &MySQL{User: "root", DumpBinary: binary, Timeout: 100 * time.Millisecond}
	err := mysql.Dump(context.Background(), "shop", &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Dump error = %v, want DeadlineExceeded", err)
	}
}

func TestRestoreAndSize(t *testing.T) {
	binary, record := fakeClient(t, "123456\n", 0)
	mysql := &MySQL{User: "root", ClientBinary: binary}

	if err := mysql.Restore(context.Background(), "shop", strings.NewReader("CREATE TABLE t (x INT);")); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	log := readRecord(t, record)
	if !strings.Contains(log, "STDIN\nCREATE TABLE t (x INT);") {
		t.Errorf("restore did not feed the dump on stdin:\n%s", log)
	}

	size, err := mysql.Size(context.Background(), "shop")
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if size != 123456 {
		t.Errorf("Size = %d, want 123456", size)
	}
}
