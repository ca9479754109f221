package server

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
)

// OpenTCP opens a listening TCP socket. bind may be "port", ":port" or
// "host:port"; a bare port listens on every address, IPv4 and IPv6.
func OpenTCP(bind string) (net.Listener, error) {
	addr := bind
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", bind, err)
	}
	log.Info().Str("addr", l.Addr().String()).Msg("listening on TCP socket")
	return l, nil
}

// OpenUnix opens a listening UNIX-domain stream socket, replacing a
// stale socket file left over from an earlier run. The path is unlinked
// again when the listener closes.
func OpenUnix(path string) (net.Listener, error) {
	if info, err := os.Stat(path); err == nil && info.Mode().Type() == fs.ModeSocket {
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale socket %q: %w", path, err)
		}
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checking socket path %q: %w", path, err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %q: %w", path, err)
	}
	log.Info().Str("path", path).Msg("listening on UNIX socket")
	return l, nil
}
