package staging

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeConns(t *testing.T) (*wire.Conn, *wire.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return wire.New(a), wire.New(b)
}

func TestWriteReadFileFrame(t *testing.T) {
	writer, reader := pipeConns(t)
	deadline := time.Now().Add(5 * time.Second)

	go func() {
		_ = WriteFile(writer, "out.txt", []byte("hello world"), 0o644, deadline)
	}()

	frame, err := ReadFrame(reader, deadline)
	require.NoError(t, err)
	assert.Equal(t, KindFile, frame.Kind)
	assert.Equal(t, "out.txt", frame.Name)
	assert.Equal(t, []byte("hello world"), frame.Payload)
}

func TestWriteReadSymlinkFrame(t *testing.T) {
	writer, reader := pipeConns(t)
	deadline := time.Now().Add(5 * time.Second)

	go func() {
		_ = WriteSymlink(writer, "link", "/some/target", deadline)
	}()

	frame, err := ReadFrame(reader, deadline)
	require.NoError(t, err)
	assert.Equal(t, KindSymlink, frame.Kind)
	assert.Equal(t, "/some/target", string(frame.Payload))
}

func TestWriteReadMissingFrame(t *testing.T) {
	writer, reader := pipeConns(t)
	deadline := time.Now().Add(5 * time.Second)

	go func() {
		_ = WriteMissing(writer, "absent.txt", 2, deadline)
	}()

	frame, err := ReadFrame(reader, deadline)
	require.NoError(t, err)
	assert.Equal(t, KindMissing, frame.Kind)
	assert.Equal(t, "absent.txt", frame.Name)
	assert.Equal(t, 2, frame.Errno)
}

func TestWriteReadTreeRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("A"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("B"), 0o644))

	writer, reader := pipeConns(t)
	deadline := time.Now().Add(5 * time.Second)

	errCh := make(chan error, 1)
	go func() {
		errCh <- WriteTree(writer, "payload", src, deadline)
	}()

	dest := t.TempDir()
	missing, err := ReadTree(reader, dest, deadline)
	require.NoError(t, err)
	require.NoError(t, <-errCh)
	assert.Empty(t, missing)

	got, err := os.ReadFile(filepath.Join(dest, "payload", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(got))

	got, err = os.ReadFile(filepath.Join(dest, "payload", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "B", string(got))
}

func TestWriteTreeMissingPath(t *testing.T) {
	writer, reader := pipeConns(t)
	deadline := time.Now().Add(5 * time.Second)

	go func() {
		_ = WriteTree(writer, "gone", filepath.Join(t.TempDir(), "does-not-exist"), deadline)
	}()

	frame, err := ReadFrame(reader, deadline)
	require.NoError(t, err)
	assert.Equal(t, KindMissing, frame.Kind)
	assert.Equal(t, "gone", frame.Name)
}

func TestApplyUpdateAppendsAndTruncates(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "log.txt"), []byte("0123456789"), 0o644))

	frame := &Frame{Kind: KindUpdate, Path: "log.txt", Offset: 4, Size: 3, Payload: []byte("XYZ")}
	require.NoError(t, ApplyUpdate(dest, frame))

	got, err := os.ReadFile(filepath.Join(dest, "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "0123XYZ", string(got))
}
