package wire

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"time"
)

// Conn wraps a net.Conn (plain or TLS-wrapped, per security.WrapServer)
// with buffered line and exact-length binary reads, each call taking
// an explicit deadline so short control exchanges and long bulk
// transfers can use different timeouts from the same connection
// (spec §4.1, §5 "every network operation carries a stoptime").
type Conn struct {
	net.Conn
	r *bufio.Reader
	w *bufio.Writer
}

// New wraps an accepted connection.
func New(c net.Conn) *Conn {
	return &Conn{Conn: c, r: bufio.NewReader(c), w: bufio.NewWriter(c)}
}

// ReadLine reads one newline-terminated ASCII control line, with the
// trailing newline (and any carriage return) stripped.
func (c *Conn) ReadLine(deadline time.Time) (string, error) {
	if err := c.SetReadDeadline(deadline); err != nil {
		return "", err
	}
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadExact reads exactly n bytes of binary payload following a
// header line that declared the byte count.
func (c *Conn) ReadExact(n int64, deadline time.Time) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("wire: negative payload length %d", n)
	}
	if err := c.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(c.r, buf); err != nil {
		return nil, fmt.Errorf("wire: read exact %d bytes: %w", n, err)
	}
	return buf, nil
}

// DiscardExact reads and drops exactly n bytes of a declared payload
// without buffering them, for when the caller has already decided not
// to keep the bytes (e.g. stdout past the configured cap) but must
// still consume them to keep the connection's framing in sync.
func (c *Conn) DiscardExact(n int64, deadline time.Time) error {
	if n < 0 {
		return fmt.Errorf("wire: negative payload length %d", n)
	}
	if err := c.SetReadDeadline(deadline); err != nil {
		return err
	}
	if _, err := io.CopyN(io.Discard, c.r, n); err != nil {
		return fmt.Errorf("wire: discard %d bytes: %w", n, err)
	}
	return nil
}

// WriteLine writes one line, appending the protocol's newline
// terminator, and flushes immediately (control lines are not
// batched — the worker may be waiting on this exact line).
func (c *Conn) WriteLine(line string, deadline time.Time) error {
	if err := c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := c.w.WriteString(line); err != nil {
		return err
	}
	if !strings.HasSuffix(line, "\n") {
		if _, err := c.w.WriteString("\n"); err != nil {
			return err
		}
	}
	return c.w.Flush()
}

// WritePayload writes a header line (the caller formats it with the
// byte count already embedded, per the protocol's per-message header
// shape) followed by the exact payload bytes.
func (c *Conn) WritePayload(header string, payload []byte, deadline time.Time) error {
	if err := c.WriteLine(header, deadline); err != nil {
		return err
	}
	if err := c.SetWriteDeadline(deadline); err != nil {
		return err
	}
	if _, err := c.w.Write(payload); err != nil {
		return err
	}
	return c.w.Flush()
}
