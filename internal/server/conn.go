// Package server owns the client-facing side of the daemon: the TCP and
// UNIX stream listeners and the per-connection line framing.
package server

import (
	"net"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hifictl/onkyocontrol/internal/protocol"
)

// MaxConnections caps the number of simultaneous clients.
const MaxConnections = 200

// LineBuffer assembles newline-delimited commands out of a fixed 64-byte
// window. At most one unterminated line is buffered; a line that cannot
// fit is thrown away wholesale.
type LineBuffer struct {
	buf []byte
	pos int
}

func NewLineBuffer() *LineBuffer {
	return &LineBuffer{buf: make([]byte, protocol.BufSize)}
}

// Tail returns the free space a read should fill.
func (lb *LineBuffer) Tail() []byte { return lb.buf[lb.pos:] }

// Advance consumes count bytes just read into Tail, returning every
// complete line found. overflow reports that the buffer filled without a
// newline; the pending bytes (and the rest of this read) are discarded.
func (lb *LineBuffer) Advance(count int) (lines []string, overflow bool) {
	for count > 0 {
		switch {
		case lb.buf[lb.pos] == '\n':
			lines = append(lines, string(lb.buf[:lb.pos]))
			rest := count - 1
			copy(lb.buf, lb.buf[lb.pos+1:lb.pos+1+rest])
			for i := rest; i < len(lb.buf); i++ {
				lb.buf[i] = 0
			}
			lb.pos = 0
			count = rest
		case lb.pos >= len(lb.buf)-1:
			for i := range lb.buf {
				lb.buf[i] = 0
			}
			lb.pos = 0
			return lines, true
		default:
			lb.pos++
			count--
		}
	}
	return lines, false
}

// Conn is one accepted client. Reads happen on the connection's reader
// goroutine; writes happen only on the daemon goroutine.
type Conn struct {
	nc   net.Conn
	peer string
	lb   *LineBuffer
}

// NewConn wraps an accepted socket. TCP peers get NODELAY (command lines
// are tiny) and kernel keepalive; there is no application-level timeout.
func NewConn(nc net.Conn) *Conn {
	peer := "(unix socket)"
	if tc, ok := nc.(*net.TCPConn); ok {
		peer = nc.RemoteAddr().String()
		if err := tc.SetNoDelay(true); err != nil {
			log.Warn().Err(err).Str("client", peer).Msg("failed to set TCP_NODELAY")
		}
		if err := tc.SetKeepAlive(true); err != nil {
			log.Warn().Err(err).Str("client", peer).Msg("failed to set SO_KEEPALIVE")
		}
	}
	return &Conn{nc: nc, peer: peer, lb: NewLineBuffer()}
}

func (c *Conn) Peer() string { return c.peer }

// ReadLines performs one read pass and returns the complete commands it
// produced, trailing whitespace stripped. An oversized line is logged
// and dropped without ending the connection.
func (c *Conn) ReadLines() ([]string, error) {
	n, err := c.nc.Read(c.lb.Tail())
	if n == 0 {
		return nil, err
	}
	raw, overflow := c.lb.Advance(n)
	if overflow {
		log.Warn().Str("client", c.peer).Msg("buffer size exceeded, discarding input")
	}
	lines := raw[:0]
	for _, l := range raw {
		lines = append(lines, strings.TrimRight(l, " \t\r"))
	}
	return lines, err
}

// WriteString writes the whole string or fails.
func (c *Conn) WriteString(s string) error {
	_, err := c.nc.Write([]byte(s))
	return err
}

func (c *Conn) Close() error { return c.nc.Close() }
