package analysis

import (
	"errors"
	"testing"

	"github.com/austinkregel/local-media/resonanced/internal/canon"
	"github.com/austinkregel/local-media/resonanced/internal/safety"
)

func sampleRecord() *Record {
	return &Record{
		Result: &Result{
			DetectedHz:      528.4,
			Canonical:       canon.Classify(528),
			CanonicalDistHz: 0.4,
			Resonance:       0.2,
			Safety:          safety.Assess(528.4),
			Notes:           []string{"ok"},
		},
		Status:   StatusAnalyzed,
		Version:  ResultVersion,
		FileHash: "abc",
	}
}

func testStores(t *testing.T) map[string]Store {
	t.Helper()
	js, err := NewJSONStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewJSONStore failed: %v", err)
	}
	sq, err := NewSQLiteStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { sq.Close() })
	return map[string]Store{"json": js, "sqlite": sq}
}

func TestStorePutGet(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Put("/music/a.flac", sampleRecord()); err != nil {
				t.Fatalf("Put failed: %v", err)
			}

			rec, err := store.Get("/music/a.flac")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if rec.Result.Canonical.Hz != 528 || rec.Result.DetectedHz != 528.4 {
				t.Errorf("Unexpected result: %+v", rec.Result)
			}
			if rec.Result.Safety.Tier != safety.TierSafe {
				t.Errorf("Expected SAFE tier, got %v", rec.Result.Safety.Tier)
			}
			if rec.AnalyzedAt == 0 {
				t.Error("Expected AnalyzedAt to be stamped")
			}

			if _, err := store.Get("/missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreIsCurrent(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Put("a", sampleRecord())

			if !store.IsCurrent("a", "abc", ResultVersion) {
				t.Error("Expected current record")
			}
			if store.IsCurrent("a", "changed", ResultVersion) {
				t.Error("Expected stale record after hash change")
			}
			if store.IsCurrent("a", "abc", ResultVersion+1) {
				t.Error("Expected stale record for newer version")
			}

			failed := sampleRecord()
			failed.Status = StatusFailed
			store.Put("b", failed)
			if store.IsCurrent("b", "abc", ResultVersion) {
				t.Error("Failed records must not count as current")
			}
		})
	}
}

func TestStoreAllAndCount(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			store.Put("a", sampleRecord())
			store.Put("b", &Record{Status: StatusFailed, Error: "boom", FileHash: "x"})
			store.Put("a", sampleRecord()) // overwrite

			n, err := store.Count()
			if err != nil || n != 2 {
				t.Errorf("Expected 2 records, got %d (%v)", n, err)
			}

			all, err := store.All()
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if all["b"].Result != nil || all["b"].Error != "boom" {
				t.Errorf("Unexpected failed record: %+v", all["b"])
			}
		})
	}
}

func TestJSONStorePersists(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewJSONStore(dir)
	store.Put("a", sampleRecord())
	if err := store.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := NewJSONStore(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	rec, err := reopened.Get("a")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.Result.Canonical.Name != canon.Classify(528).Name {
		t.Errorf("Expected canonical name to persist, got %q", rec.Result.Canonical.Name)
	}
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	if _, err := OpenStore("redis", t.TempDir()); err == nil {
		t.Error("Expected error for unknown backend")
	}
}
