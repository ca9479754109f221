// Package receiver holds the per-device state the daemon mediates: the
// pending command queue, the zone power mask, pacing timestamps and the
// virtual zone sleep timers.
package receiver

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hifictl/onkyocontrol/internal/protocol"
)

// Power mask bits, one per zone.
const (
	MainPower = 1 << iota
	Zone2Power
	Zone3Power
)

const (
	// CommandWait is the minimum gap between serial writes to one
	// receiver; the unit cannot keep up with anything faster.
	CommandWait = 80 * time.Millisecond

	// SleepUpdateInterval paces the zone sleep countdown broadcasts.
	SleepUpdateInterval = time.Minute
)

type queueEntry struct {
	hash uint64
	code string
}

// Receiver is one serial-attached device. All fields are owned by the
// daemon goroutine; nothing here is safe for concurrent use.
type Receiver struct {
	name string
	port io.ReadWriter

	power        int
	CmdsSent     int
	MsgsReceived int

	lastCmd         time.Time
	zone2Sleep      time.Time
	zone3Sleep      time.Time
	nextSleepUpdate time.Time

	queue []queueEntry

	now func() time.Time
}

// New wraps an opened duplex transport (normally the serial port) as a
// Receiver. The name is used only for logging and the status dump.
func New(name string, port io.ReadWriter) *Receiver {
	return &Receiver{name: name, port: port, now: time.Now}
}

// SetClock replaces the receiver's time source; tests use this to drive
// pacing and sleep arithmetic deterministically.
func (r *Receiver) SetClock(now func() time.Time) { r.now = now }

func (r *Receiver) Name() string        { return r.name }
func (r *Receiver) Port() io.ReadWriter { return r.port }
func (r *Receiver) PowerMask() int      { return r.power }
func (r *Receiver) QueueLen() int       { return len(r.queue) }

// Powered reports whether any zone is known to be on.
func (r *Receiver) Powered() bool { return r.power != 0 }

// EnqueueCommand appends a code to the send queue. A code whose hash is
// already pending is dropped silently; re-requesting an identical action
// before the first copy was sent must not double it up.
func (r *Receiver) EnqueueCommand(code string) {
	h := protocol.Hash(code)
	for _, e := range r.queue {
		if e.hash == h {
			return
		}
	}
	r.queue = append(r.queue, queueEntry{hash: h, code: code})
}

// DrainQueue throws away every pending command.
func (r *Receiver) DrainQueue() { r.queue = nil }

// isPowerCommand reports whether a code may be sent while every zone is
// off; power commands are the only way out of that state.
func isPowerCommand(code string) bool {
	return strings.Contains(code, "PWR") ||
		strings.Contains(code, "ZPW") ||
		strings.Contains(code, "PW3")
}

// pop removes and returns the next sendable command. While the power
// mask is clear, anything that is not a power command is discarded.
func (r *Receiver) pop() (string, bool) {
	for len(r.queue) > 0 {
		e := r.queue[0]
		r.queue = r.queue[1:]
		if r.power != 0 || isPowerCommand(e.code) {
			return e.code, true
		}
		log.Info().
			Str("receiver", r.name).
			Str("code", e.code).
			Msg("skipping command, receiver power off")
	}
	return "", false
}

// CanSend reports whether enough time has passed since the last serial
// write. When it has not, the second return value is the remaining wait.
// A clock that moved backwards restarts a full pacing interval.
func (r *Receiver) CanSend(now time.Time) (bool, time.Duration) {
	if now.Before(r.lastCmd) {
		r.lastCmd = now
		return false, CommandWait
	}
	if elapsed := now.Sub(r.lastCmd); elapsed < CommandWait {
		return false, CommandWait - elapsed
	}
	return true, 0
}

// SendOne pops the next sendable command, wraps it in the wire envelope
// and writes it to the transport. The caller has already checked
// CanSend. The pacing clock restarts whether or not the write succeeds.
func (r *Receiver) SendOne() error {
	code, ok := r.pop()
	if !ok {
		return nil
	}
	msg := protocol.StartSend + code + protocol.EndSend
	n, err := io.WriteString(r.port, msg)
	r.lastCmd = r.now()
	if err != nil {
		return fmt.Errorf("writing %q to %s: %w", code, r.name, err)
	}
	if n != len(msg) {
		return fmt.Errorf("short write of %q to %s: %d of %d bytes", code, r.name, n, len(msg))
	}
	r.CmdsSent++
	log.Debug().Str("receiver", r.name).Str("code", code).Msg("command sent")
	return nil
}

// SetPower records a zone power report. Powering a zone off also disarms
// its virtual sleep timer; a countdown on a dead zone means nothing.
func (r *Receiver) SetPower(zone int, on bool) {
	var bit int
	switch zone {
	case protocol.ZoneMain:
		bit = MainPower
	case protocol.Zone2:
		bit = Zone2Power
	case protocol.Zone3:
		bit = Zone3Power
	default:
		return
	}
	if on {
		r.power |= bit
		return
	}
	r.power &^= bit
	if zone == protocol.Zone2 || zone == protocol.Zone3 {
		r.ClearZoneSleep(zone)
	}
}

// SetZoneSleep arms the virtual sleep timer for zone 2 or 3.
func (r *Receiver) SetZoneSleep(zone int, d time.Duration) {
	deadline := r.now().Add(d)
	switch zone {
	case protocol.Zone2:
		r.zone2Sleep = deadline
	case protocol.Zone3:
		r.zone3Sleep = deadline
	}
}

// ClearZoneSleep disarms the virtual sleep timer for zone 2 or 3.
func (r *Receiver) ClearZoneSleep(zone int) {
	switch zone {
	case protocol.Zone2:
		r.zone2Sleep = time.Time{}
	case protocol.Zone3:
		r.zone3Sleep = time.Time{}
	}
}

// SleepDeadline returns the absolute expiry of a zone's sleep timer; the
// zero time means the timer is not armed.
func (r *Receiver) SleepDeadline(zone int) time.Time {
	switch zone {
	case protocol.Zone2:
		return r.zone2Sleep
	case protocol.Zone3:
		return r.zone3Sleep
	}
	return time.Time{}
}

// SleepRemaining reports the whole minutes left on a zone's sleep timer,
// rounded up, or 0 when the timer is not armed or already expired.
func (r *Receiver) SleepRemaining(zone int) int {
	deadline := r.SleepDeadline(zone)
	if deadline.IsZero() {
		return 0
	}
	left := deadline.Sub(r.now())
	if left <= 0 {
		return 0
	}
	return int((left + time.Minute - 1) / time.Minute)
}

// SleepActive reports whether either zone's sleep timer is armed.
func (r *Receiver) SleepActive() bool {
	return !r.zone2Sleep.IsZero() || !r.zone3Sleep.IsZero()
}

// NextSleepUpdate is the time of the next countdown broadcast; the zero
// time means none is scheduled.
func (r *Receiver) NextSleepUpdate() time.Time { return r.nextSleepUpdate }

// SetNextSleepUpdate schedules (or cancels, with the zero time) the next
// countdown broadcast.
func (r *Receiver) SetNextSleepUpdate(t time.Time) { r.nextSleepUpdate = t }
