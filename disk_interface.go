package buildfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"runtime"
	"strings"
)

// TimeStamp is a file's last-modification time. Zero means the entry
// does not exist; a negative value is only ever returned together with
// a non-nil error. Positive values are opaque and only meaningful when
// compared against each other or the two sentinels.
type TimeStamp int64

// RemoveStatus is the three-way outcome of RemoveFile.
type RemoveStatus int

const (
	Removed     RemoveStatus = 0
	Absent      RemoveStatus = 1
	RemoveError RemoveStatus = -1
)

// FileReader is the read-only half of DiskInterface; loaders that only
// consume file contents depend on this.
type FileReader interface {
	// ReadFile returns the full contents of path. A missing file reads
	// as empty contents with a nil error, indistinguishable from an
	// empty file; callers that need the difference call Stat first.
	// Binary mode never alters the bytes; text mode may translate
	// platform line endings.
	ReadFile(path string, binary bool) (string, error)
}

// DiskInterface abstracts the filesystem operations the build engine
// needs, so the engine can run against real disk or an in-memory
// realization such as VirtualFileSystem.
type DiskInterface interface {
	FileReader

	// Stat returns path's mtime, 0 if the entry does not exist, or a
	// negative stamp with a non-nil error on any other failure.
	Stat(path string) (TimeStamp, error)

	// WriteFile replaces the contents of path using text semantics.
	WriteFile(path, contents string) error

	// MakeDir creates a single directory level. An already existing
	// directory is a failure; MakeDirs checks existence first.
	MakeDir(path string) error

	// RemoveFile behaves like 'rm -f path': Removed on success, Absent
	// if the entry did not exist, RemoveError with a non-nil error
	// otherwise.
	RemoveFile(path string) (RemoveStatus, error)
}

// ParentDir returns the directory portion of path, with the final
// separator run and any separators immediately preceding it stripped,
// so "a///b" and "a/b" both yield "a". A run reaching the start of the
// string collapses to a single separator. Paths without a separator
// have no parent and yield "".
func ParentDir(path string) string {
	slash := strings.LastIndexAny(path, pathSeparators)
	if slash < 0 {
		return ""
	}
	for slash > 0 && strings.IndexByte(pathSeparators, path[slash-1]) >= 0 {
		slash--
	}
	if slash == 0 {
		return path[:1]
	}
	return path[:slash]
}

// MakeDirs ensures every directory in path's parent chain exists,
// creating missing ones parent-first. path names the file about to be
// created, not a directory itself. Failures from Stat or MakeDir are
// propagated unwrapped. The existence check and the creation are not
// atomic against concurrent actors; treat a failure here as retryable.
func MakeDirs(di DiskInterface, path string) error {
	dir := ParentDir(path)
	if dir == "" || dir == path {
		return nil // Reached root; assume it's there.
	}
	mtime, err := di.Stat(dir)
	if err != nil {
		return err
	}
	if mtime > 0 {
		return nil // Exists already; we're done.
	}
	// Directory doesn't exist. Try creating its parent first.
	if err := MakeDirs(di, dir); err != nil {
		return err
	}
	return di.MakeDir(dir)
}

// RealDiskInterface -----------------------------------------------------------

type dirCache map[string]TimeStamp

// RealDiskInterface issues real OS calls.
type RealDiskInterface struct {
	// Whether stat information can be cached. Only used on Windows.
	useCache bool

	// Per-directory mtime maps, keyed by lower-cased directory name.
	cache map[string]dirCache

	longPathsEnabled bool
}

func NewRealDiskInterface() *RealDiskInterface {
	return &RealDiskInterface{
		cache:            make(map[string]dirCache),
		longPathsEnabled: probeLongPaths(),
	}
}

// WriteFile replaces the contents of path. The three failure points
// (create, write, close) are reported separately. Contents already at
// path are destroyed even when a later step fails.
func (d *RealDiskInterface) WriteFile(path, contents string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return fmt.Errorf("WriteFile(%s): unable to create file: %v", path, err)
	}
	if _, err := io.WriteString(f, writeText(contents)); err != nil {
		f.Close()
		return fmt.Errorf("WriteFile(%s): unable to write to the file: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteFile(%s): unable to close the file: %v", path, err)
	}
	return nil
}

func (d *RealDiskInterface) MakeDir(path string) error {
	if err := os.Mkdir(path, 0777); err != nil {
		return fmt.Errorf("mkdir(%s): %v", path, err)
	}
	return nil
}

// ReadFile returns the full contents of path. ENOENT is swallowed: the
// caller gets empty contents and a nil error, same as for an empty
// file. Any other failure is reported.
func (d *RealDiskInterface) ReadFile(path string, binary bool) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// Swallow ENOENT.
			return "", nil
		}
		return "", fmt.Errorf("ReadFile(%s): %v", path, err)
	}
	if !binary {
		return readText(buf), nil
	}
	return string(buf), nil
}

func (d *RealDiskInterface) RemoveFile(path string) (RemoveStatus, error) {
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Absent, nil
		}
		return RemoveError, fmt.Errorf("remove(%s): %v", path, err)
	}
	return Removed, nil
}

// AllowStatCache toggles the per-directory stat cache. Only has an
// effect on Windows; disabling drops any cached state.
func (d *RealDiskInterface) AllowStatCache(allow bool) {
	if runtime.GOOS != "windows" {
		return
	}
	d.useCache = allow
	if !d.useCache {
		d.cache = make(map[string]dirCache)
	}
}

// AreLongPathsEnabled reports whether the volume supports paths longer
// than MAX_PATH. Always true off Windows.
func (d *RealDiskInterface) AreLongPathsEnabled() bool {
	return d.longPathsEnabled
}
