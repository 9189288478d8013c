package staging

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/dswarm/pkg/wire"
)

// Kind tags one line of the staging grammar (spec §4.7).
type Kind int

const (
	KindDir Kind = iota
	KindEnd
	KindFile
	KindSymlink
	KindMissing
	KindUpdate
)

// Frame is one parsed line of the staging protocol, plus its payload
// if the kind carries one.
type Frame struct {
	Kind Kind

	Name string // url-decoded

	Size int64       // file/update: byte count that follows
	Mode uint32       // file: permission bits, parsed from the 0<octal> field
	TargetLen int64   // symlink: byte count that follows

	Errno int // missing

	TaskID int64  // update
	Path   string // update: path relative to the task's sandbox
	Offset int64  // update

	Payload []byte // file/symlink/update body, once read
}

// WriteDir writes the opening line of a directory entry. The caller
// writes the entry's children and then WriteEnd.
func WriteDir(c *wire.Conn, name string, deadline time.Time) error {
	return c.WriteLine(fmt.Sprintf("dir %s", url.QueryEscape(name)), deadline)
}

// WriteEnd closes the most recently opened directory.
func WriteEnd(c *wire.Conn, deadline time.Time) error {
	return c.WriteLine("end", deadline)
}

// WriteFile streams one file's bytes inline after its header line.
func WriteFile(c *wire.Conn, name string, data []byte, mode uint32, deadline time.Time) error {
	header := fmt.Sprintf("file %s %d 0%o", url.QueryEscape(name), len(data), mode)
	return c.WritePayload(header, data, deadline)
}

// WriteSymlink streams a symlink's target as the payload.
func WriteSymlink(c *wire.Conn, name, target string, deadline time.Time) error {
	header := fmt.Sprintf("symlink %s %d", url.QueryEscape(name), len(target))
	return c.WritePayload(header, []byte(target), deadline)
}

// WriteMissing marks one entry as absent without aborting the stream.
func WriteMissing(c *wire.Conn, name string, errno int, deadline time.Time) error {
	return c.WriteLine(fmt.Sprintf("missing %s %d", url.QueryEscape(name), errno), deadline)
}

// WriteUpdate sends an incremental append for a watched output file
// that is still being written by a running task.
func WriteUpdate(c *wire.Conn, taskID int64, path string, offset int64, data []byte, deadline time.Time) error {
	header := fmt.Sprintf("update %d %s %d %d", taskID, url.QueryEscape(path), offset, len(data))
	return c.WritePayload(header, data, deadline)
}

// WriteGet requests that the worker send back the named output
// object, the retrieval counterpart to WriteTree's put side (spec §4.7).
func WriteGet(c *wire.Conn, name string, deadline time.Time) error {
	return c.WriteLine(fmt.Sprintf("get %s", url.QueryEscape(name)), deadline)
}

// DecodeUpdateLine parses an "update <taskid> <url-encoded-path>
// <offset> <length>" header into a Frame without reading its payload.
// Shared between ReadFrame's "update" case and the manager's own
// watched-file interception (pkg/manager/worker.go) since both must
// read the declared payload themselves before the connection's next
// line can be read.
func DecodeUpdateLine(fields []string) (*Frame, error) {
	if len(fields) != 5 || fields[0] != "update" {
		return nil, fmt.Errorf("staging: malformed update line")
	}
	taskID, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("staging: update task id: %w", err)
	}
	path, err := url.QueryUnescape(fields[2])
	if err != nil {
		return nil, fmt.Errorf("staging: update path: %w", err)
	}
	offset, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("staging: update offset: %w", err)
	}
	length, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("staging: update length: %w", err)
	}
	return &Frame{Kind: KindUpdate, TaskID: taskID, Path: path, Offset: offset, Size: length}, nil
}

// ReadFrame reads and classifies one staging line, reading its binary
// payload (if any) before returning.
func ReadFrame(c *wire.Conn, deadline time.Time) (*Frame, error) {
	line, err := c.ReadLine(deadline)
	if err != nil {
		return nil, err
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("staging: empty line")
	}

	switch fields[0] {
	case "dir":
		if len(fields) != 2 {
			return nil, fmt.Errorf("staging: malformed dir line %q", line)
		}
		name, err := url.QueryUnescape(fields[1])
		if err != nil {
			return nil, fmt.Errorf("staging: dir name: %w", err)
		}
		return &Frame{Kind: KindDir, Name: name}, nil

	case "end":
		return &Frame{Kind: KindEnd}, nil

	case "file":
		if len(fields) != 3 && len(fields) != 4 {
			return nil, fmt.Errorf("staging: malformed file line %q", line)
		}
		name, err := url.QueryUnescape(fields[1])
		if err != nil {
			return nil, fmt.Errorf("staging: file name: %w", err)
		}
		size, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("staging: file size: %w", err)
		}
		var mode uint32
		if len(fields) == 4 {
			m, err := strconv.ParseUint(strings.TrimPrefix(fields[3], "0"), 8, 32)
			if err != nil {
				return nil, fmt.Errorf("staging: file mode: %w", err)
			}
			mode = uint32(m)
		}
		payload, err := c.ReadExact(size, deadline)
		if err != nil {
			return nil, err
		}
		return &Frame{Kind: KindFile, Name: name, Size: size, Mode: mode, Payload: payload}, nil

	case "symlink":
		if len(fields) != 3 {
			return nil, fmt.Errorf("staging: malformed symlink line %q", line)
		}
		name, err := url.QueryUnescape(fields[1])
		if err != nil {
			return nil, fmt.Errorf("staging: symlink name: %w", err)
		}
		n, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("staging: symlink target length: %w", err)
		}
		payload, err := c.ReadExact(n, deadline)
		if err != nil {
			return nil, err
		}
		return &Frame{Kind: KindSymlink, Name: name, TargetLen: n, Payload: payload}, nil

	case "missing":
		if len(fields) != 3 {
			return nil, fmt.Errorf("staging: malformed missing line %q", line)
		}
		name, err := url.QueryUnescape(fields[1])
		if err != nil {
			return nil, fmt.Errorf("staging: missing name: %w", err)
		}
		errno, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("staging: missing errno: %w", err)
		}
		return &Frame{Kind: KindMissing, Name: name, Errno: errno}, nil

	case "update":
		frame, err := DecodeUpdateLine(fields)
		if err != nil {
			return nil, err
		}
		payload, err := c.ReadExact(frame.Size, deadline)
		if err != nil {
			return nil, err
		}
		frame.Payload = payload
		return frame, nil

	default:
		return nil, fmt.Errorf("staging: unknown frame %q", line)
	}
}
