// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/quartermaster-backup/quartermaster/lib/config"
)

const sftpDialTimeout = 30 * time.Second

// SFTPTarget mirrors into a directory on an SSH host.
type SFTPTarget struct {
	name   string
	root   string
	client *sftp.Client
	conn   io.Closer
}

// NewSFTPTarget wraps an established client. Close closes the client
// but not the connection beneath it.
func NewSFTPTarget(name, root string, client *sftp.Client) *SFTPTarget {
	return &SFTPTarget{name: name, root: path.Clean(root), client: client}
}

// DialSFTP connects with key-file authentication. The host key must be
// listed in the known_hosts file, which defaults to
// ~/.ssh/known_hosts.
func DialSFTP(ctx context.Context, settings config.MirrorTarget) (*SFTPTarget, error) {
	clientConfig, err := sshClientConfig(settings)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: %w", settings.Name, err)
	}
	port := settings.Port
	if port == 0 {
		port = 22
	}
	address := net.JoinHostPort(settings.Host, strconv.Itoa(port))

	dialer := net.Dialer{Timeout: sftpDialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("mirror %s: dialing %s: %w", settings.Name, address, err)
	}
	sshConn, channels, requests, err := ssh.NewClientConn(conn, address, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("mirror %s: ssh handshake with %s: %w", settings.Name, address, err)
	}
	sshClient := ssh.NewClient(sshConn, channels, requests)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("mirror %s: starting sftp: %w", settings.Name, err)
	}
	target := NewSFTPTarget(settings.Name, settings.Path, client)
	target.conn = sshClient
	return target, nil
}

func sshClientConfig(settings config.MirrorTarget) (*ssh.ClientConfig, error) {
	if settings.KeyFile == "" {
		return nil, fmt.Errorf("key_file is required")
	}
	key, err := os.ReadFile(expandHome(settings.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", settings.KeyFile, err)
	}
	knownHosts := settings.KnownHosts
	if knownHosts == "" {
		knownHosts = "~/.ssh/known_hosts"
	}
	callback, err := knownhosts.New(expandHome(knownHosts))
	if err != nil {
		return nil, fmt.Errorf("loading known hosts: %w", err)
	}
	return &ssh.ClientConfig{
		User:            settings.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: callback,
		Timeout:         sftpDialTimeout,
	}, nil
}

func expandHome(name string) string {
	if rest, ok := strings.CutPrefix(name, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return name
}

func (t *SFTPTarget) Name() string { return t.name }

func (t *SFTPTarget) resolve(rel string) (string, string, error) {
	cleaned, err := cleanRel(rel)
	if err != nil {
		return "", "", err
	}
	return cleaned, path.Join(t.root, cleaned), nil
}

func (t *SFTPTarget) Stat(ctx context.Context, rel string) (Object, error) {
	cleaned, full, err := t.resolve(rel)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	info, err := t.client.Stat(full)
	if errors.Is(err, fs.ErrNotExist) {
		return Object{}, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return Object{}, fmt.Errorf("stat %s: %w", full, err)
	}
	return Object{Path: cleaned, Size: info.Size()}, nil
}

func (t *SFTPTarget) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	cleaned, full, err := t.resolve(rel)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := t.client.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", full, err)
	}
	return file, nil
}

// Put uploads under a hidden temporary name and renames into place.
func (t *SFTPTarget) Put(ctx context.Context, object Object, r io.Reader) error {
	_, full, err := t.resolve(object.Path)
	if err != nil {
		return err
	}
	directory := path.Dir(full)
	if err := t.client.MkdirAll(directory); err != nil {
		return fmt.Errorf("creating %s: %w", directory, err)
	}
	temp := path.Join(directory, tempName(path.Base(full), uuid.NewString()[:8]))
	if err := t.upload(ctx, temp, object.Size, r); err != nil {
		t.client.Remove(temp)
		return err
	}
	if err := t.client.PosixRename(temp, full); err != nil {
		// Servers without the posix-rename extension refuse to
		// rename over an existing file.
		t.client.Remove(full)
		if err := t.client.Rename(temp, full); err != nil {
			t.client.Remove(temp)
			return fmt.Errorf("renaming into %s: %w", full, err)
		}
	}
	return nil
}

func (t *SFTPTarget) upload(ctx context.Context, temp string, size int64, r io.Reader) error {
	file, err := t.client.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("creating %s: %w", temp, err)
	}
	written, err := io.Copy(file, contextReader{ctx: ctx, reader: r})
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("uploading %s: %w", temp, err)
	}
	if size >= 0 && written != size {
		return fmt.Errorf("uploaded %d bytes to %s, expected %d", written, temp, size)
	}
	if err := t.client.Chmod(temp, 0600); err != nil {
		return fmt.Errorf("chmod %s: %w", temp, err)
	}
	return nil
}

func (t *SFTPTarget) Remove(ctx context.Context, rel string) error {
	_, full, err := t.resolve(rel)
	if err != nil {
		return err
	}
	if err := t.client.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", full, err)
	}
	return nil
}

func (t *SFTPTarget) List(ctx context.Context, prefix string) ([]Object, error) {
	start := t.root
	if prefix != "" {
		_, full, err := t.resolve(prefix)
		if err != nil {
			return nil, err
		}
		start = full
	}
	var objects []Object
	walker := t.client.Walk(start)
	for walker.Step() {
		if err := walker.Err(); err != nil {
			if walker.Path() == start && errors.Is(err, fs.ErrNotExist) {
				return nil, nil
			}
			return objects, fmt.Errorf("walking %s: %w", walker.Path(), err)
		}
		if err := ctx.Err(); err != nil {
			return objects, err
		}
		info := walker.Stat()
		if !info.Mode().IsRegular() || isTemp(path.Base(walker.Path())) {
			continue
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), t.root), "/")
		objects = append(objects, Object{Path: rel, Size: info.Size()})
	}
	return objects, nil
}

func (t *SFTPTarget) Close() error {
	err := t.client.Close()
	if t.conn != nil {
		err = errors.Join(err, t.conn.Close())
	}
	return err
}
