//go:build !linux

package diskvfs

import "os"

func syncData(f *os.File) error {
	return f.Sync()
}
