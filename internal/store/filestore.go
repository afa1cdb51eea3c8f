package store

import (
	"io/ioutil"
	"os"
	"sync"

	"blitiri.com.ar/go/log"
	"gopkg.in/yaml.v2"

	"smtpblackhole/internal/safeio"
)

// FileStore wraps a MemStore and snapshots the full mail list to disk after
// every mutation, using an atomic write (internal/safeio.WriteFile) so a
// snapshot is never observed half-written. It exists for development
// convenience — surviving a restart of the blackhole itself — and is
// explicitly not durable replication: a single YAML file on local disk is
// the whole story.
type FileStore struct {
	*MemStore
	path string

	// snapMu serializes snapshot writes so concurrent Creates don't race
	// each other's os.Rename.
	snapMu sync.Mutex
}

// NewFileStore returns a FileStore snapshotting to path. If path already
// exists, its contents are loaded as the initial state.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{MemStore: NewMemStore(), path: path}

	if buf, err := ioutil.ReadFile(path); err == nil {
		var emails []Email
		if err := yaml.Unmarshal(buf, &emails); err != nil {
			return nil, err
		}
		for i := range emails {
			e := emails[i]
			fs.MemStore.byID[e.ID] = &e
			fs.MemStore.order = append(fs.MemStore.order, e.ID)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	return fs, nil
}

func (fs *FileStore) snapshot() {
	fs.snapMu.Lock()
	defer fs.snapMu.Unlock()

	// List() already returns a fully copied, newest-first slice; reverse it
	// back to insertion order so re-loading produces identical ordering.
	newestFirst := fs.MemStore.List()
	emails := make([]Email, len(newestFirst))
	for i, e := range newestFirst {
		emails[len(newestFirst)-1-i] = e
	}

	buf, err := yaml.Marshal(emails)
	if err != nil {
		log.Errorf("filestore: failed to marshal snapshot: %v", err)
		return
	}
	if err := safeio.WriteFile(fs.path, buf, 0600); err != nil {
		log.Errorf("filestore: failed to write snapshot to %q: %v", fs.path, err)
	}
}

// Create implements EmailStore.
func (fs *FileStore) Create(e Email) (string, error) {
	id, err := fs.MemStore.Create(e)
	if err != nil {
		return "", err
	}
	fs.snapshot()
	return id, nil
}

// MarkRead implements EmailStore.
func (fs *FileStore) MarkRead(id string) error {
	if err := fs.MemStore.MarkRead(id); err != nil {
		return err
	}
	fs.snapshot()
	return nil
}

// DeleteAll implements EmailStore.
func (fs *FileStore) DeleteAll() error {
	if err := fs.MemStore.DeleteAll(); err != nil {
		return err
	}
	fs.snapshot()
	return nil
}
