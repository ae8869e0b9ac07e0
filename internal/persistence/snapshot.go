// Package persistence handles the Storage Engine's primary/backup
// snapshot files: atomic write-then-rename, and the startup adoption
// order from spec.md §4.5 (primary, else backup promoted to primary,
// else bootstrap).
//
// Grounded on the teacher's internal/store.Store.Snapshot()/loadSnapshot()
// (tmp file + os.Rename for crash safety) and wal.go's fsync-before-ack
// discipline.
package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"library-network/internal/catalog"

	"github.com/sirupsen/logrus"
)

// Store is a primary+backup snapshot pair on disk for one site.
type Store struct {
	dir string
	log *logrus.Entry
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string, log *logrus.Entry) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{dir: dir, log: log}, nil
}

func (s *Store) primaryPath() string { return filepath.Join(s.dir, "primary.json") }
func (s *Store) backupPath() string  { return filepath.Join(s.dir, "backup.json") }

// Load implements spec.md §4.5 Startup: adopt primary if it parses;
// else adopt backup and immediately re-persist it as primary; else
// bootstrap a synthetic catalog. The returned bool reports whether a
// bootstrap catalog was handed back (I4: the backup is a recovery
// fallback, the bootstrap a last resort).
func (s *Store) Load() (c *catalog.Catalog, bootstrapped bool, err error) {
	if c, err := s.loadFile(s.primaryPath()); err == nil {
		return c, false, nil
	} else if !os.IsNotExist(err) {
		s.log.WithError(err).Warn("primary snapshot exists but failed to parse, falling back to backup")
	}

	if c, err := s.loadFile(s.backupPath()); err == nil {
		s.log.Warn("adopted backup snapshot, re-persisting as primary")
		if werr := s.WritePrimary(c); werr != nil {
			return nil, false, fmt.Errorf("re-persist backup as primary: %w", werr)
		}
		return c, false, nil
	} else if !os.IsNotExist(err) {
		return nil, false, fmt.Errorf("both primary and backup snapshots unreadable: %w", err)
	}

	return catalog.Bootstrap(), true, nil
}

func (s *Store) loadFile(path string) (*catalog.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := catalog.New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return c, nil
}

// WritePrimary synchronously persists c to the primary snapshot file.
// Write-then-rename: a crash mid-write leaves the old primary intact
// (spec.md §5's "write-then-rename" requirement).
func (s *Store) WritePrimary(c *catalog.Catalog) error {
	return atomicWriteJSON(s.primaryPath(), c)
}

// WriteBackup persists c to the backup snapshot file; it blocks until
// the write is done, and the engine runs it on its own goroutine so
// the owner loop does not wait for it. Failures here are logged and non-fatal (spec.md §4.5 Failure
// semantics: "Replica failure is non-fatal").
func (s *Store) WriteBackup(c *catalog.Catalog) {
	if err := atomicWriteJSON(s.backupPath(), c); err != nil {
		s.log.WithError(err).Warn("backup snapshot write failed; in-memory state remains authoritative")
	}
}

func atomicWriteJSON(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
