// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package registry persistently maps Telegram users to their Google Docs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"

	"crawshaw.dev/jsonfile"
)

// data is the on-disk format of the registry: a map from Telegram user ID to
// Google Docs document ID. User IDs are stored as strings.
type data struct {
	Docs map[string]string `json:"docs"`
}

// Registry maps Telegram user IDs to Google Docs document IDs, backed by a
// JSON file that survives restarts.
type Registry struct {
	f *jsonfile.JSONFile[data]

	// mu serializes GetOrCreate so that two concurrent calls for the same user
	// can't both create a document.
	mu sync.Mutex
}

// Open opens the registry at path, creating an empty one if the file doesn't
// exist.
func Open(path string) (*Registry, error) {
	f, err := jsonfile.Load[data](path)
	if errors.Is(err, fs.ErrNotExist) {
		f, err = jsonfile.New[data](path)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: opening %s: %w", path, err)
	}
	return &Registry{f: f}, nil
}

func key(userID int64) string { return strconv.FormatInt(userID, 10) }

// Lookup returns the document ID for the user, if any.
func (r *Registry) Lookup(userID int64) (documentID string, ok bool) {
	r.f.Read(func(d *data) {
		documentID, ok = d.Docs[key(userID)]
	})
	return
}

// GetOrCreate returns the document ID for the user, calling create to make a
// new document if the user doesn't have one yet. For any given user, create
// runs at most once across concurrent calls.
func (r *Registry) GetOrCreate(ctx context.Context, userID int64, create func(ctx context.Context) (string, error)) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if documentID, ok := r.Lookup(userID); ok {
		return documentID, nil
	}

	documentID, err := create(ctx)
	if err != nil {
		return "", err
	}

	if err := r.f.Write(func(d *data) error {
		if d.Docs == nil {
			d.Docs = make(map[string]string)
		}
		d.Docs[key(userID)] = documentID
		return nil
	}); err != nil {
		return "", fmt.Errorf("registry: saving document for user %d: %w", userID, err)
	}

	return documentID, nil
}
