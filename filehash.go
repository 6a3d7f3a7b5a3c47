package buildfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/segmentio/fasthash/fnv1a"
	"github.com/zeebo/blake3"
	"golang.org/x/mod/sumdb/dirhash"
)

// HashFile returns a 64-bit content key for path. The key covers the
// contents and the prefix-stripped name, so a file keeps its key when
// the tree it lives in is relocated.
func HashFile(path, prefix string) (uint64, error) {
	defer MetricRecord("hash file")()
	h := blake3.New()
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	hf := blake3.New()
	_, err = io.Copy(hf, f)
	f.Close()
	if err != nil {
		return 0, err
	}
	fmt.Fprintf(h, "%x  %s\n", hf.Sum(nil), strings.TrimPrefix(path, prefix))
	return fnv1a.HashBytes64(h.Sum(nil)), nil
}

// blake3DirHash is a dirhash.Hash over blake3 instead of sha256.
func blake3DirHash(files []string, open func(string) (io.ReadCloser, error)) (string, error) {
	h := blake3.New()
	files = append([]string(nil), files...)
	sort.Strings(files)
	for _, file := range files {
		if strings.Contains(file, "\n") {
			return "", errors.New("dirhash: filenames with newlines are not supported")
		}
		r, err := open(file)
		if err != nil {
			return "", err
		}
		hf := blake3.New()
		_, err = io.Copy(hf, r)
		r.Close()
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%x  %s\n", hf.Sum(nil), file)
	}
	return fmt.Sprintf("b3:%x", h.Sum(nil)), nil
}

// HashTree returns a 64-bit key for every regular file under dir, with
// names reported relative to prefix.
func HashTree(dir, prefix string) (uint64, error) {
	defer MetricRecord("hash tree")()
	sum, err := dirhash.HashDir(dir, prefix, blake3DirHash)
	if err != nil {
		return 0, err
	}
	return fnv1a.HashString64(sum), nil
}

// PathKey hashes a path into the 64-bit key the state log indexes by.
func PathKey(path string) uint64 {
	return RapidHash([]byte(path), rapidSeed)
}
