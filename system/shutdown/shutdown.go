package shutdown

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// Exit closes every resource handed to it and terminates the process.
// UNIX socket paths are unlinked by their listeners' Close.
func Exit(code int, closers ...io.Closer) {
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close during shutdown failed")
		}
	}
	os.Exit(code)
}

// ExitWithError logs a fatal condition and terminates with failure.
func ExitWithError(err error, msg string, closers ...io.Closer) {
	log.Error().Err(err).Msg(msg)
	Exit(1, closers...)
}
