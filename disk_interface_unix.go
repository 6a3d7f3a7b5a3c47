//go:build !windows

package buildfs

const pathSeparators = "/"

// POSIX has no text/binary distinction; both read and write modes pass
// bytes through untouched.
func readText(buf []byte) string { return string(buf) }

func writeText(contents string) string { return contents }

func probeLongPaths() bool { return true }
