package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"library-network/internal/catalog"

	"github.com/sirupsen/logrus"
)

func TestLoadBootstrapsOnEmptyDir(t *testing.T) {
	s, err := New(t.TempDir(), logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatal(err)
	}

	c, bootstrapped, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !bootstrapped {
		t.Fatal("expected bootstrapped=true on an empty data directory")
	}
	if c == nil || len(c.Books) == 0 {
		t.Fatal("bootstrap catalog should carry the seed books")
	}
}

func TestWritePrimaryThenLoadRoundTrips(t *testing.T) {
	s, err := New(t.TempDir(), logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatal(err)
	}

	c := catalog.New()
	c.Version = 4
	c.Books["L0001"] = &catalog.Book{Code: "L0001", TotalCopies: 2, AvailableCopies: 1, Loans: map[string]*catalog.Loan{}}
	if err := s.WritePrimary(c); err != nil {
		t.Fatal(err)
	}

	loaded, bootstrapped, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if bootstrapped {
		t.Fatal("a written primary snapshot must not be reported as bootstrapped")
	}
	if loaded.Version != 4 {
		t.Fatalf("version = %d, want 4", loaded.Version)
	}
}

func TestLoadFallsBackToBackupWhenPrimaryCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatal(err)
	}

	backup := catalog.New()
	backup.Version = 2
	backup.Books["L0002"] = &catalog.Book{Code: "L0002", TotalCopies: 1, AvailableCopies: 1, Loans: map[string]*catalog.Loan{}}
	if err := atomicWriteJSON(s.backupPath(), backup); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(dir, "primary.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	loaded, bootstrapped, err := s.Load()
	if err != nil {
		t.Fatal(err)
	}
	if bootstrapped {
		t.Fatal("adopting the backup must not be reported as bootstrapped")
	}
	if loaded.Version != 2 {
		t.Fatalf("version = %d, want 2 (adopted from backup)", loaded.Version)
	}

	// Recovering from backup must re-persist it as primary.
	reloaded, err := New(dir, logrus.NewEntry(logrus.New()))
	if err != nil {
		t.Fatal(err)
	}
	data, err := reloaded.loadFile(reloaded.primaryPath())
	if err != nil {
		t.Fatalf("expected backup to have been re-persisted as primary: %v", err)
	}
	if data.Version != 2 {
		t.Fatalf("re-persisted primary version = %d, want 2", data.Version)
	}
}
