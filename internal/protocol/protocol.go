// Package protocol implements both directions of the Onkyo ISCP text
// protocol: translating client command lines into receiver opcodes, and
// translating receiver replies back into normalized OK:key:value events.
//
// The receiver speaks in opaque codes such as "PWR01" or "MVL2A", framed
// on the wire as "!1<code>\r\n". Clients speak readable commands such as
// "power on" or "volume 42" and receive events such as "OK:power:on\n".
package protocol

import "time"

// Result is the outcome of translating one client command line.
type Result int

const (
	ResultOK Result = iota
	ResultInvalid
	ResultQuit
)

// Zone identifiers used by power tracking and the fake sleep timers.
const (
	ZoneMain = 1
	Zone2    = 2
	Zone3    = 3
)

// Wire framing for commands sent to the receiver.
const (
	StartSend = "!1"
	EndSend   = "\r\n"
	StartRecv = "!1"
)

// BufSize is the size of every fixed command buffer; a translated code
// must fit in it together with the wire envelope.
const BufSize = 64

const maxCodeLen = BufSize - len(StartSend) - len(EndSend)

// Canonical protocol strings shared by the daemon and the server.
const (
	Greeting       = "OK:onkyocontrol v1.1\n"
	InvalidCommand = "ERROR:Invalid Command\n"
	ReceiverError  = "ERROR:Receiver Error\n"
	MaxConnections = "ERROR:Max Connections Reached\n"
)

// Device is the per-receiver state the translator and the parser drive.
// It is implemented by receiver.Receiver; the indirection keeps this
// package free of any dependency on the daemon's state types.
type Device interface {
	// EnqueueCommand appends a code to the device's send queue unless an
	// equal code is already pending.
	EnqueueCommand(code string)
	// SetPower records the power state reported for a zone.
	SetPower(zone int, on bool)
	// SetZoneSleep arms the virtual sleep timer for zone 2 or 3.
	SetZoneSleep(zone int, d time.Duration)
	// ClearZoneSleep disarms the virtual sleep timer for zone 2 or 3.
	ClearZoneSleep(zone int)
	// SleepRemaining reports the whole minutes left on a zone's virtual
	// sleep timer, rounded up; 0 when the timer is not armed.
	SleepRemaining(zone int) int
}

// Hash maps a string to the token used as the primary key of every code
// table and command queue. This is the standard sdbm hashing algorithm.
func Hash(s string) uint64 {
	var h uint64
	for i := 0; i < len(s); i++ {
		h = uint64(s[i]) + (h << 6) + (h << 16) - h
	}
	return h
}
