package fsserve

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := OpenIndex(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestInsertAndExists(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.Insert("out/a.o", "cafe", "100", time.Hour); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	exists, err := idx.Exists("cafe", "100")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !exists {
		t.Fatal("inserted artifact not found")
	}
	exists, err = idx.Exists("cafe", "200")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Fatal("found an artifact that was never inserted")
	}
}

func TestFindExpiredAndMarkCleaned(t *testing.T) {
	idx := openTestIndex(t)
	// Negative ttl: expired as soon as it is inserted.
	if err := idx.Insert("out/stale.o", "dead", "1", -time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("out/fresh.o", "feed", "2", time.Hour); err != nil {
		t.Fatal(err)
	}
	expired, err := idx.FindExpired(math.MaxInt64, 100)
	if err != nil {
		t.Fatalf("FindExpired: %v", err)
	}
	if len(expired) != 1 || expired[0].ContentHash != "dead" {
		t.Fatalf("FindExpired = %+v, want just the stale artifact", expired)
	}
	if got := expired[0].StoreName(); got != "dead_1" {
		t.Fatalf("StoreName = %q, want dead_1", got)
	}

	if err := idx.MarkCleaned([]int64{expired[0].ID}); err != nil {
		t.Fatalf("MarkCleaned: %v", err)
	}
	exists, err := idx.Exists("dead", "1")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Fatal("cleaned artifact still visible")
	}
	expired, err = idx.FindExpired(math.MaxInt64, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(expired) != 0 {
		t.Fatalf("FindExpired after cleaning = %+v", expired)
	}
}

func TestFindExpiredPagesByCursor(t *testing.T) {
	idx := openTestIndex(t)
	for _, hash := range []string{"aa", "bb", "cc"} {
		if err := idx.Insert("out/"+hash, hash, "1", -time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	seen := map[int64]bool{}
	before := int64(math.MaxInt64)
	for {
		batch, err := idx.FindExpired(before, 2)
		if err != nil {
			t.Fatalf("FindExpired: %v", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, artifact := range batch {
			if seen[artifact.ID] {
				t.Fatalf("artifact %d returned twice", artifact.ID)
			}
			seen[artifact.ID] = true
		}
		before = batch[len(batch)-1].ID
	}
	if len(seen) != 3 {
		t.Fatalf("paged over %d artifacts, want 3", len(seen))
	}
}

func TestMarkCleanedEmpty(t *testing.T) {
	idx := openTestIndex(t)
	if err := idx.MarkCleaned(nil); err != nil {
		t.Fatalf("MarkCleaned(nil): %v", err)
	}
}
