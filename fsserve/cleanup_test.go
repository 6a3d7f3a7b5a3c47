package fsserve

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// A batch size of one forces the sweep to page through several
// FindExpired calls before draining the queue.
func TestCleanTaskSweepsWholeBacklog(t *testing.T) {
	tmp := t.TempDir()
	root := filepath.Join(tmp, "root")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := New(Config{
		Addr:       "localhost:0",
		RootDir:    root,
		IndexPath:  filepath.Join(tmp, "index.db"),
		CleanBatch: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.index.Close() })

	hashes := []string{"aa", "bb", "cc"}
	for _, hash := range hashes {
		name := hash + "_1"
		if err := os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := s.index.Insert("out/"+hash, hash, "1", -time.Minute); err != nil {
			t.Fatal(err)
		}
	}

	s.cleanTask()

	for _, hash := range hashes {
		if _, err := os.Stat(filepath.Join(root, hash+"_1")); err == nil {
			t.Fatalf("artifact %s_1 survived the sweep", hash)
		}
	}
	left, err := s.index.FindExpired(math.MaxInt64, 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("%d expired rows left after sweep", len(left))
	}
}
