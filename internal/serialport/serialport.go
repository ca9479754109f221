// Package serialport opens the 9600-baud link to a receiver and frames
// the byte stream it produces into individual status messages.
package serialport

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// frameEnd terminates every message the receiver emits.
const frameEnd = 0x1A

// Open configures a serial device the way the receiver expects it:
// 9600 baud, 8 data bits, no parity, one stop bit, no flow control.
func Open(device string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("opening serial device %q: %w", device, err)
	}
	log.Info().Str("device", device).Msg("serial device opened")
	return port, nil
}

// ScanFrames is a bufio.SplitFunc yielding one receiver message per
// token, the 0x1A terminator stripped. Leading noise stays in the token;
// the protocol parser locates the "!1" marker itself.
func ScanFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == frameEnd {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
