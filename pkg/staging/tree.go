package staging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/dswarm/pkg/wire"
)

// WriteTree streams root (a file, directory, or symlink) as one
// logical frame sequence. A directory is sent as a dir/.../end block
// whose children are each written recursively; a missing path is sent
// as a single `missing` frame rather than failing the whole stream
// (spec §4.7).
func WriteTree(c *wire.Conn, name, root string, deadline time.Time) error {
	info, err := os.Lstat(root)
	if err != nil {
		errno := 0
		if pe, ok := err.(*os.PathError); ok {
			errno = int(errnoOf(pe))
		}
		return WriteMissing(c, name, errno, deadline)
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		target, err := os.Readlink(root)
		if err != nil {
			return fmt.Errorf("staging: readlink %s: %w", root, err)
		}
		return WriteSymlink(c, name, target, deadline)

	case info.IsDir():
		if err := WriteDir(c, name, deadline); err != nil {
			return err
		}
		entries, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("staging: readdir %s: %w", root, err)
		}
		for _, e := range entries {
			if err := WriteTree(c, e.Name(), filepath.Join(root, e.Name()), deadline); err != nil {
				return err
			}
		}
		return WriteEnd(c, deadline)

	default:
		data, err := os.ReadFile(root)
		if err != nil {
			return fmt.Errorf("staging: read %s: %w", root, err)
		}
		return WriteFile(c, name, data, uint32(info.Mode().Perm()), deadline)
	}
}

// ReadTree reads one frame sequence and materializes it under destRoot.
// A `missing` frame is recorded and skipped rather than treated as an
// error, matching the stream's "one missing output, rest continues"
// contract.
func ReadTree(c *wire.Conn, destRoot string, deadline time.Time) (missing []string, err error) {
	err = readTreeInto(c, destRoot, deadline, &missing)
	return missing, err
}

func readTreeInto(c *wire.Conn, dest string, deadline time.Time, missing *[]string) error {
	frame, err := ReadFrame(c, deadline)
	if err != nil {
		return err
	}
	return applyFrame(c, frame, dest, deadline, missing)
}

func applyFrame(c *wire.Conn, frame *Frame, dest string, deadline time.Time, missing *[]string) error {
	switch frame.Kind {
	case KindMissing:
		*missing = append(*missing, filepath.Join(dest, frame.Name))
		return nil

	case KindSymlink:
		target := string(frame.Payload)
		path := filepath.Join(dest, frame.Name)
		_ = os.Remove(path)
		return os.Symlink(target, path)

	case KindFile:
		path := filepath.Join(dest, frame.Name)
		return os.WriteFile(path, frame.Payload, os.FileMode(frame.Mode))

	case KindDir:
		path := filepath.Join(dest, frame.Name)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return err
		}
		for {
			child, err := ReadFrame(c, deadline)
			if err != nil {
				return err
			}
			if child.Kind == KindEnd {
				return nil
			}
			if err := applyFrame(c, child, path, deadline, missing); err != nil {
				return err
			}
		}

	default:
		return fmt.Errorf("staging: unexpected top-level frame kind %d", frame.Kind)
	}
}

// ApplyUpdate appends an incremental watched-output notification to
// the local copy of the file at offset, truncating to offset+length
// (spec §4.7).
func ApplyUpdate(destRoot string, frame *Frame) error {
	if frame.Kind != KindUpdate {
		return fmt.Errorf("staging: ApplyUpdate called with non-update frame")
	}
	path := filepath.Join(destRoot, frame.Path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteAt(frame.Payload, frame.Offset); err != nil {
		return err
	}
	return f.Truncate(frame.Offset + frame.Size)
}

func errnoOf(pe *os.PathError) int {
	if os.IsNotExist(pe) {
		return 2 // ENOENT
	}
	if os.IsPermission(pe) {
		return 13 // EACCES
	}
	return 5 // EIO
}
