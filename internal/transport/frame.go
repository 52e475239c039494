// Package transport implements the CLI Transport: a length-prefixed
// framed duplex socket (Unix domain socket or TCP) to the companion CLI
// process, with request/response correlation over a single persistent
// connection. The "unix" network dial shape follows dd-trace-go's
// ddtrace/tracer/transport_test.go TestWithUDS, generalized from an
// HTTP-over-UDS transport to a raw framed duplex one.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize bounds a single incoming frame so a corrupt or hostile
// peer cannot make the reader allocate unbounded memory.
const maxFrameSize = 64 * 1024 * 1024

// writeFrame writes payload as a uint32-big-endian length prefix
// followed by payload itself.
func writeFrame(w io.Writer, payload []byte) error {
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("transport: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("transport: write frame payload: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from r.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("transport: frame size %d exceeds max %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("transport: read frame payload: %w", err)
	}
	return buf, nil
}
