package static

import "os"

// Metadata is the result of a single filesystem probe.
type Metadata struct {
	Exists bool
	Size   uint64
}

// Probe reports whether name, relative to root, is a regular file and its
// size, without opening it. Directories, special files and symlinks that
// leave root report Exists=false.
func Probe(root *os.Root, name string) Metadata {
	fi, err := root.Stat(name)
	if err != nil || !fi.Mode().IsRegular() {
		return Metadata{}
	}
	return Metadata{Exists: true, Size: uint64(fi.Size())}
}
