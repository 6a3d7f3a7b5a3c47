//go:build windows

package buildfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"unsafe"
)

const pathSeparators = "/\\"

// Text mode mirrors the CRT's "w"/"rb" translation.
func readText(buf []byte) string {
	return strings.ReplaceAll(string(buf), "\r\n", "\n")
}

func writeText(contents string) string {
	return strings.ReplaceAll(contents, "\n", "\r\n")
}

var (
	modkernel32              = syscall.NewLazyDLL("kernel32.dll")
	procGetVolumeInformation = modkernel32.NewProc("GetVolumeInformationW")
)

const fileSupportsLongNames = 0x02

// probeLongPaths asks the system volume whether long names are
// supported, so Stat knows when the MAX_PATH guard applies.
func probeLongPaths() bool {
	var (
		volumeName   [260]uint16
		fsName       [260]uint16
		serial       uint32
		maxComponent uint32
		fsFlags      uint32
	)
	root := syscall.StringToUTF16Ptr(`C:\`)
	ret, _, _ := procGetVolumeInformation.Call(
		uintptr(unsafe.Pointer(root)),
		uintptr(unsafe.Pointer(&volumeName[0])),
		uintptr(len(volumeName)),
		uintptr(unsafe.Pointer(&serial)),
		uintptr(unsafe.Pointer(&maxComponent)),
		uintptr(unsafe.Pointer(&fsFlags)),
		uintptr(unsafe.Pointer(&fsName[0])),
		uintptr(len(fsName)),
	)
	if ret == 0 {
		return false
	}
	return fsFlags&fileSupportsLongNames != 0
}

func filetimeToStamp(ft syscall.Filetime) TimeStamp {
	return TimeStamp(ft.Nanoseconds())
}

// Stat queries file attributes without opening the file. With the stat
// cache enabled, one directory listing answers every lookup in that
// directory until the cache is dropped.
func (d *RealDiskInterface) Stat(path string) (TimeStamp, error) {
	defer MetricRecord("node stat")()
	// MSDN: "Naming Files, Paths, and Namespaces"
	// http://msdn.microsoft.com/en-us/library/windows/desktop/aa365247(v=vs.85).aspx
	if path != "" && !d.longPathsEnabled && path[0] != '\\' && len(path) > syscall.MAX_PATH {
		return -1, fmt.Errorf("Stat(%s): Filename longer than %d characters", path, syscall.MAX_PATH)
	}
	if !d.useCache {
		return statSingleFile(path)
	}

	dir := ParentDir(path)
	base := filepath.Base(path)
	if base == ".." {
		// The directory listing reports nothing for "..".
		base = "."
		dir = path
	}

	dirKey := strings.ToLower(dir)
	base = strings.ToLower(base)

	stamps, ok := d.cache[dirKey]
	if !ok {
		stamps = make(dirCache)
		listDir := dir
		if listDir == "" {
			listDir = "."
		}
		if err := statAllFilesInDir(listDir, stamps); err != nil {
			return -1, err
		}
		d.cache[dirKey] = stamps
	}
	return stamps[base], nil
}

func statSingleFile(path string) (TimeStamp, error) {
	p, err := syscall.UTF16PtrFromString(path)
	if err != nil {
		return -1, fmt.Errorf("Stat(%s): %v", path, err)
	}
	var attrs syscall.Win32FileAttributeData
	if err := syscall.GetFileAttributesEx(p, syscall.GetFileExInfoStandard, (*byte)(unsafe.Pointer(&attrs))); err != nil {
		if err == syscall.ERROR_FILE_NOT_FOUND || err == syscall.ERROR_PATH_NOT_FOUND {
			return 0, nil
		}
		return -1, fmt.Errorf("GetFileAttributesEx(%s): %v", path, err)
	}
	return filetimeToStamp(attrs.LastWriteTime), nil
}

func statAllFilesInDir(dir string, stamps dirCache) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil
		}
		return fmt.Errorf("ReadDir(%s): %v", dir, err)
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("Stat(%s): %v", filepath.Join(dir, entry.Name()), err)
		}
		stamps[strings.ToLower(entry.Name())] = TimeStamp(info.ModTime().UnixNano())
	}
	return nil
}
