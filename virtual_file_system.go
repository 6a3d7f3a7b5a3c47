package buildfs

import (
	"errors"
	"fmt"

	"github.com/ahrtr/gocontainer/set"
)

type vfsEntry struct {
	mtime    TimeStamp
	contents string
	// statErr, when non-empty, makes Stat fail with this text.
	statErr string
}

// VirtualFileSystem is an in-memory DiskInterface realization backed by
// a path-to-entry map with a manually advanced clock. It records every
// mutating call so tests can assert what was touched and in what order.
type VirtualFileSystem struct {
	entries map[string]vfsEntry
	now     TimeStamp

	// DirsMade lists MakeDir calls in call order.
	DirsMade []string
	// FilesRead lists ReadFile hits in call order.
	FilesRead []string

	FilesCreated set.Interface
	FilesRemoved set.Interface
}

func NewVirtualFileSystem() *VirtualFileSystem {
	return &VirtualFileSystem{
		entries:      make(map[string]vfsEntry),
		now:          1,
		FilesCreated: set.New(),
		FilesRemoved: set.New(),
	}
}

// Tick advances the clock and returns the new time.
func (v *VirtualFileSystem) Tick() TimeStamp {
	v.now++
	return v.now
}

// Create seeds a file at the current time.
func (v *VirtualFileSystem) Create(path, contents string) {
	v.entries[path] = vfsEntry{mtime: v.now, contents: contents}
	v.FilesCreated.Add(path)
}

// SetStatError makes subsequent Stat calls on path fail, for testing
// error propagation.
func (v *VirtualFileSystem) SetStatError(path, message string) {
	entry := v.entries[path]
	entry.statErr = message
	v.entries[path] = entry
}

func (v *VirtualFileSystem) Stat(path string) (TimeStamp, error) {
	entry, ok := v.entries[path]
	if !ok {
		return 0, nil
	}
	if entry.statErr != "" {
		return -1, errors.New(entry.statErr)
	}
	return entry.mtime, nil
}

func (v *VirtualFileSystem) WriteFile(path, contents string) error {
	v.Create(path, contents)
	return nil
}

// MakeDir fails on an existing directory, matching the real
// realization, which lets tests catch redundant creation.
func (v *VirtualFileSystem) MakeDir(path string) error {
	if _, ok := v.entries[path]; ok {
		return fmt.Errorf("mkdir(%s): file exists", path)
	}
	v.entries[path] = vfsEntry{mtime: v.now}
	v.DirsMade = append(v.DirsMade, path)
	return nil
}

func (v *VirtualFileSystem) ReadFile(path string, binary bool) (string, error) {
	entry, ok := v.entries[path]
	if !ok {
		return "", nil
	}
	v.FilesRead = append(v.FilesRead, path)
	return entry.contents, nil
}

func (v *VirtualFileSystem) RemoveFile(path string) (RemoveStatus, error) {
	if _, ok := v.entries[path]; !ok {
		return Absent, nil
	}
	delete(v.entries, path)
	v.FilesRemoved.Add(path)
	return Removed, nil
}
