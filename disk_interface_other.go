//go:build !linux && !windows

package buildfs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

func (d *RealDiskInterface) Stat(path string) (TimeStamp, error) {
	defer MetricRecord("node stat")()
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return -1, fmt.Errorf("stat(%s): %v", path, err)
	}
	return TimeStamp(info.ModTime().UnixNano()), nil
}
