package buildfs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParentDir(t *testing.T) {
	cases := []struct {
		path, want string
	}{
		{"", ""},
		{"file.txt", ""},
		{"a/b", "a"},
		{"a//b", "a"},
		{"a///b", "a"},
		{"a/b/c", "a/b"},
		{"a/b//", "a/b"},
		{"/a", "/"},
		{"//a", "/"},
		{"/a/b", "/a"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := ParentDir(tc.path); got != tc.want {
			t.Errorf("ParentDir(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestParentDirNoSeparator(t *testing.T) {
	for _, path := range []string{"x", "file.txt", "..", "."} {
		if got := ParentDir(path); got != "" {
			t.Errorf("ParentDir(%q) = %q, want empty", path, got)
		}
	}
}

func TestStatMissing(t *testing.T) {
	disk := NewRealDiskInterface()
	mtime, err := disk.Stat(filepath.Join(t.TempDir(), "nosuchfile"))
	if err != nil {
		t.Fatalf("Stat on a missing path reported an error: %v", err)
	}
	if mtime != 0 {
		t.Fatalf("Stat on a missing path = %d, want 0", mtime)
	}
}

func TestStatExisting(t *testing.T) {
	disk := NewRealDiskInterface()
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	mtime, err := disk.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if mtime <= 0 {
		t.Fatalf("Stat on an existing file = %d, want positive", mtime)
	}
}

func TestStatPermissionError(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("running as root; permission checks do not apply")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0755); err != nil {
		t.Fatal(err)
	}
	inner := filepath.Join(locked, "file")
	if err := os.WriteFile(inner, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(locked, 0); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	disk := NewRealDiskInterface()
	mtime, err := disk.Stat(inner)
	if err == nil {
		t.Fatal("Stat under an untraversable directory succeeded")
	}
	if mtime >= 0 {
		t.Fatalf("Stat error sentinel = %d, want negative", mtime)
	}
	if err.Error() == "" {
		t.Fatal("Stat failure carried empty error text")
	}
}

func TestWriteFileReadFileRoundtrip(t *testing.T) {
	disk := NewRealDiskInterface()
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := disk.WriteFile(path, "hello\nworld\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := disk.ReadFile(path, false)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got != "hello\nworld\n" {
		t.Fatalf("ReadFile = %q", got)
	}
}

func TestWriteFileOverwrites(t *testing.T) {
	disk := NewRealDiskInterface()
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := disk.WriteFile(path, "long original contents"); err != nil {
		t.Fatal(err)
	}
	if err := disk.WriteFile(path, "new"); err != nil {
		t.Fatal(err)
	}
	got, err := disk.ReadFile(path, true)
	if err != nil {
		t.Fatal(err)
	}
	if got != "new" {
		t.Fatalf("ReadFile after overwrite = %q, want %q", got, "new")
	}
}

func TestWriteFileUnableToCreate(t *testing.T) {
	disk := NewRealDiskInterface()
	// The parent does not exist, so the create step fails.
	err := disk.WriteFile(filepath.Join(t.TempDir(), "no", "such", "dir", "f"), "x")
	if err == nil {
		t.Fatal("WriteFile into a missing directory succeeded")
	}
}

func TestReadFileMissingVersusEmpty(t *testing.T) {
	disk := NewRealDiskInterface()
	dir := t.TempDir()

	got, err := disk.ReadFile(filepath.Join(dir, "missing"), false)
	if err != nil {
		t.Fatalf("ReadFile on a missing path reported an error: %v", err)
	}
	if got != "" {
		t.Fatalf("ReadFile on a missing path = %q, want empty", got)
	}

	empty := filepath.Join(dir, "empty")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	got, err = disk.ReadFile(empty, false)
	if err != nil {
		t.Fatalf("ReadFile on an empty file reported an error: %v", err)
	}
	if got != "" {
		t.Fatalf("ReadFile on an empty file = %q, want empty", got)
	}
}

func TestRemoveFile(t *testing.T) {
	disk := NewRealDiskInterface()
	dir := t.TempDir()

	status, err := disk.RemoveFile(filepath.Join(dir, "missing"))
	if err != nil {
		t.Fatalf("RemoveFile on a missing path reported an error: %v", err)
	}
	if status != Absent {
		t.Fatalf("RemoveFile on a missing path = %d, want Absent", status)
	}

	path := filepath.Join(dir, "victim")
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	status, err = disk.RemoveFile(path)
	if err != nil {
		t.Fatalf("RemoveFile: %v", err)
	}
	if status != Removed {
		t.Fatalf("RemoveFile = %d, want Removed", status)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("file still present after RemoveFile")
	}
}

func TestMakeDirExistingFails(t *testing.T) {
	disk := NewRealDiskInterface()
	dir := t.TempDir()
	if err := disk.MakeDir(dir); err == nil {
		t.Fatal("MakeDir on an existing directory succeeded")
	}
}

func TestMakeDirsOnRealDisk(t *testing.T) {
	disk := NewRealDiskInterface()
	target := filepath.Join(t.TempDir(), "a", "b", "c", "file.txt")
	if err := MakeDirs(disk, target); err != nil {
		t.Fatalf("MakeDirs: %v", err)
	}
	info, err := os.Stat(filepath.Dir(target))
	if err != nil || !info.IsDir() {
		t.Fatalf("parent chain missing after MakeDirs: %v", err)
	}
	// Second call sees the chain in place and does nothing.
	if err := MakeDirs(disk, target); err != nil {
		t.Fatalf("MakeDirs (second call): %v", err)
	}
	if err := disk.WriteFile(target, "hi"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := disk.ReadFile(target, false)
	if err != nil || got != "hi" {
		t.Fatalf("ReadFile = %q, %v", got, err)
	}
}
