package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// tempDBPath returns a path to a temp database file.
func tempDBPath(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "test.db")
}

// setupTestDB creates a new temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DriverSQLite, tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	db, err := Open("", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
	if db.Driver() != DriverSQLite {
		t.Errorf("Driver() = %q, want %q", db.Driver(), DriverSQLite)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("database file does not exist at %s", path)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open("postgres", tempDBPath(t)); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second Migrate failed: %v", err)
	}

	var version int
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatal(err)
	}
	if version != 3 {
		t.Errorf("schema version = %d, want 3", version)
	}

	for _, table := range []string{"sessions", "messages", "task_results"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}

func TestFormatTime_SortsLexically(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	whole := formatTime(base.Add(time.Second))
	frac := formatTime(base.Add(500 * time.Millisecond))
	if !(frac < whole) {
		t.Errorf("expected %q < %q", frac, whole)
	}

	parsed, err := parseTime(frac)
	if err != nil {
		t.Fatal(err)
	}
	if !parsed.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("round trip = %v", parsed)
	}
}

func TestPurgeOldSessions(t *testing.T) {
	db := setupTestDB(t)

	old := &SessionRecord{ID: "old", CreatedAt: time.Now().Add(-48 * time.Hour), UpdatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &SessionRecord{ID: "fresh", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	for _, rec := range []*SessionRecord{old, fresh} {
		if err := db.SaveSession(rec); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.PurgeOldSessions(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d sessions, want 1", n)
	}

	ids, err := db.ListSessionIDs()
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "fresh" {
		t.Errorf("remaining sessions = %v", ids)
	}
}
