// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"github.com/bureau-foundation/authbridge/lib/codec"
	"github.com/bureau-foundation/authbridge/lib/sealed"
)

// FileOptions configures a File store.
type FileOptions struct {
	// Path is the session file. Its parent directory is created on
	// first save with mode 0700.
	Path string

	// Recipients are age1... public keys. When set, the file content
	// is sealed to them and IdentityFile must name a key that opens it.
	Recipients []string

	// IdentityFile is an age key file.
	IdentityFile string
}

// File stores the session in a single file. Writes go through a
// temporary file and a rename so a crash never leaves a torn session.
type File struct {
	path       string
	recipients []string
	identity   age.Identity

	// mu serialises writers within this process.
	mu sync.Mutex
}

// NewFile returns a File store. The identity file, when configured, is
// read once here.
func NewFile(options FileOptions) (*File, error) {
	if options.Path == "" {
		return nil, errors.New("session file path is required")
	}
	store := &File{
		path:       options.Path,
		recipients: options.Recipients,
	}
	if len(options.Recipients) > 0 {
		if options.IdentityFile == "" {
			return nil, errors.New("sealed session file needs an identity file")
		}
		identity, err := sealed.LoadIdentity(options.IdentityFile)
		if err != nil {
			return nil, err
		}
		store.identity = identity
	}
	return store, nil
}

func (f *File) Load(context.Context) (Session, bool, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, fmt.Errorf("reading session file: %w", err)
	}

	if f.identity != nil {
		data, err = sealed.Open(data, f.identity)
		if err != nil {
			return Session{}, false, fmt.Errorf("opening session file: %w", err)
		}
	}

	var session Session
	if err := codec.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("decoding session file %s: %w", f.path, err)
	}
	return session, true, nil
}

func (f *File) Save(_ context.Context, session Session) error {
	data, err := codec.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}
	if len(f.recipients) > 0 {
		data, err = sealed.Seal(data, f.recipients)
		if err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}
	return writeAtomic(f.path, data)
}

func (f *File) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

// writeAtomic writes data to path via a synced temporary file and a
// rename, then syncs the parent directory.
func writeAtomic(path string, data []byte) error {
	temporaryPath := path + ".tmp"

	file, err := os.OpenFile(temporaryPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating temporary session file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("writing temporary session file: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("syncing temporary session file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("closing temporary session file: %w", err)
	}

	if err := os.Rename(temporaryPath, path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("renaming session file into place: %w", err)
	}

	parentDirectory, err := os.Open(filepath.Dir(path))
	if err == nil {
		parentDirectory.Sync()
		parentDirectory.Close()
	}
	return nil
}
