// Package daemon runs the mediation loop between serial-attached
// receivers and line-protocol clients. One goroutine owns every piece of
// mutable state; reader goroutines feed it over channels, which is where
// the original single-threaded select() reactor becomes Go.
package daemon

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hifictl/onkyocontrol/internal/datadog"
	"github.com/hifictl/onkyocontrol/internal/protocol"
	"github.com/hifictl/onkyocontrol/internal/receiver"
	"github.com/hifictl/onkyocontrol/internal/serialport"
	"github.com/hifictl/onkyocontrol/internal/server"
)

// sleepZones are the zones carrying a virtual sleep timer.
var sleepZones = []int{protocol.Zone2, protocol.Zone3}

type serialFrame struct {
	rcvr *receiver.Receiver
	data []byte
}

type clientLine struct {
	conn *server.Conn
	line string
}

// Daemon owns the receivers, listeners and client connections. Apart
// from construction, every field is touched only by the Run goroutine.
type Daemon struct {
	receivers []*receiver.Receiver
	listeners []net.Listener
	conns     []*server.Conn

	frames   chan serialFrame
	rcvrGone chan *receiver.Receiver
	accepted chan net.Conn
	lines    chan clientLine
	connGone chan *server.Conn
	sigs     chan os.Signal
}

// New assembles a daemon over already-opened receivers and listeners.
func New(receivers []*receiver.Receiver, listeners []net.Listener) *Daemon {
	return &Daemon{
		receivers: receivers,
		listeners: listeners,
		frames:    make(chan serialFrame),
		rcvrGone:  make(chan *receiver.Receiver),
		accepted:  make(chan net.Conn),
		lines:     make(chan clientLine),
		connGone:  make(chan *server.Conn),
		sigs:      make(chan os.Signal, 1),
	}
}

// Run mediates until SIGINT. It only returns after everything the
// daemon owns has been closed.
func (d *Daemon) Run() error {
	signal.Notify(d.sigs, syscall.SIGINT, syscall.SIGPIPE, syscall.SIGUSR1)
	defer signal.Stop(d.sigs)

	for _, r := range d.receivers {
		go d.readSerial(r)
	}
	for _, l := range d.listeners {
		go d.acceptLoop(l)
	}

	for {
		now := time.Now()
		d.tick(now)

		var timer *time.Timer
		var timerC <-chan time.Time
		if wake := d.nextWake(time.Now()); !wake.IsZero() {
			delay := time.Until(wake)
			if delay < 0 {
				delay = 0
			}
			timer = time.NewTimer(delay)
			timerC = timer.C
		}

		select {
		case sig := <-d.sigs:
			if d.handleSignal(sig) {
				if timer != nil {
					timer.Stop()
				}
				d.shutdown()
				return nil
			}
		case f := <-d.frames:
			d.handleFrame(f)
		case r := <-d.rcvrGone:
			d.handleReceiverGone(r)
		case nc := <-d.accepted:
			d.addConn(nc)
		case l := <-d.lines:
			d.handleLine(l)
		case c := <-d.connGone:
			d.removeConn(c)
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// tick performs the time-driven work of one loop iteration: expire
// sleep timers, emit countdown broadcasts, and send at most one paced
// command per receiver.
func (d *Daemon) tick(now time.Time) {
	for _, r := range d.receivers {
		for _, zone := range sleepZones {
			deadline := r.SleepDeadline(zone)
			if deadline.IsZero() || deadline.After(now) {
				continue
			}
			log.Info().Str("receiver", r.Name()).Int("zone", zone).Msg("sleep timer expired, powering zone off")
			r.ClearZoneSleep(zone)
			protocol.Translate(r, fmt.Sprintf("zone%dpower off", zone))
			d.broadcast(protocol.FakeSleepStatus(r, zone))
		}

		if r.SleepActive() {
			next := r.NextSleepUpdate()
			switch {
			case next.IsZero():
				r.SetNextSleepUpdate(now.Add(receiver.SleepUpdateInterval))
			case !next.After(now):
				for _, zone := range sleepZones {
					if !r.SleepDeadline(zone).IsZero() {
						d.broadcast(protocol.FakeSleepStatus(r, zone))
					}
				}
				for !next.After(now) {
					next = next.Add(receiver.SleepUpdateInterval)
				}
				r.SetNextSleepUpdate(next)
			}
		} else {
			r.SetNextSleepUpdate(time.Time{})
		}

		if r.QueueLen() > 0 {
			if ok, _ := r.CanSend(now); ok {
				if err := r.SendOne(); err != nil {
					log.Error().Err(err).Str("receiver", r.Name()).Msg("serial write failed")
					d.broadcast(protocol.ReceiverError)
				} else {
					datadog.Count("commands.sent", 1)
				}
			}
		}
		datadog.Gauge("queue.depth", float64(r.QueueLen()), "receiver:"+r.Name())
	}
}

// nextWake folds every pending deadline into the earliest one; the zero
// time means there is nothing to wait for.
func (d *Daemon) nextWake(now time.Time) time.Time {
	var wake time.Time
	fold := func(t time.Time) {
		if t.IsZero() {
			return
		}
		if wake.IsZero() || t.Before(wake) {
			wake = t
		}
	}
	for _, r := range d.receivers {
		for _, zone := range sleepZones {
			fold(r.SleepDeadline(zone))
		}
		fold(r.NextSleepUpdate())
		if r.QueueLen() > 0 {
			if ok, wait := r.CanSend(now); ok {
				fold(now)
			} else {
				fold(now.Add(wait))
			}
		}
	}
	return wake
}

// readSerial frames the receiver's byte stream and feeds it to the loop.
func (d *Daemon) readSerial(r *receiver.Receiver) {
	scanner := bufio.NewScanner(r.Port())
	scanner.Split(serialport.ScanFrames)
	for scanner.Scan() {
		data := append([]byte(nil), scanner.Bytes()...)
		d.frames <- serialFrame{rcvr: r, data: data}
	}
	d.rcvrGone <- r
}

// acceptLoop hands new sockets to the loop until the listener closes.
func (d *Daemon) acceptLoop(l net.Listener) {
	for {
		nc, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Error().Err(err).Msg("accept failed")
			continue
		}
		d.accepted <- nc
	}
}

// readConn pumps one client's complete lines into the loop.
func (d *Daemon) readConn(c *server.Conn) {
	for {
		lines, err := c.ReadLines()
		for _, line := range lines {
			d.lines <- clientLine{conn: c, line: line}
		}
		if err != nil {
			d.connGone <- c
			return
		}
	}
}

func (d *Daemon) handleFrame(f serialFrame) {
	f.rcvr.MsgsReceived++
	datadog.Count("messages.received", 1)
	events, err := protocol.Parse(f.rcvr, f.data)
	if err != nil {
		log.Warn().Err(err).Str("receiver", f.rcvr.Name()).Msg("unparseable receiver message")
		d.broadcast(protocol.ReceiverError)
		return
	}
	for _, ev := range events {
		d.broadcast(ev)
	}
}

// handleReceiverGone reacts to a dead serial link. There is no
// reconnection; the receiver is dropped and clients are told.
func (d *Daemon) handleReceiverGone(r *receiver.Receiver) {
	log.Error().Str("receiver", r.Name()).Msg("lost serial link to receiver")
	d.broadcast(protocol.ReceiverError)
	for i, cur := range d.receivers {
		if cur == r {
			d.receivers = append(d.receivers[:i], d.receivers[i+1:]...)
			break
		}
	}
	r.DrainQueue()
	if closer, ok := r.Port().(io.Closer); ok {
		closer.Close()
	}
}

func (d *Daemon) addConn(nc net.Conn) {
	if len(d.conns) >= server.MaxConnections {
		log.Warn().Msg("max connections reached, refusing client")
		nc.Write([]byte(protocol.MaxConnections))
		nc.Close()
		return
	}
	c := server.NewConn(nc)
	if err := c.WriteString(protocol.Greeting); err != nil {
		c.Close()
		return
	}
	d.conns = append(d.conns, c)
	datadog.Gauge("connections.active", float64(len(d.conns)))
	log.Info().Str("client", c.Peer()).Msg("client connected")
	go d.readConn(c)
}

func (d *Daemon) hasConn(c *server.Conn) bool {
	for _, cur := range d.conns {
		if cur == c {
			return true
		}
	}
	return false
}

func (d *Daemon) removeConn(c *server.Conn) {
	for i, cur := range d.conns {
		if cur == c {
			d.conns = append(d.conns[:i], d.conns[i+1:]...)
			c.Close()
			datadog.Gauge("connections.active", float64(len(d.conns)))
			log.Info().Str("client", c.Peer()).Msg("client disconnected")
			return
		}
	}
}

// handleLine runs one client command against every receiver.
func (d *Daemon) handleLine(l clientLine) {
	if !d.hasConn(l.conn) {
		return
	}
	var quit, invalid bool
	var casts []string
	for _, r := range d.receivers {
		result, bs := protocol.Translate(r, l.line)
		casts = append(casts, bs...)
		switch result {
		case protocol.ResultQuit:
			quit = true
		case protocol.ResultInvalid:
			invalid = true
		}
	}
	for _, b := range casts {
		d.broadcast(b)
	}
	if invalid {
		datadog.Count("commands.invalid", 1)
		log.Debug().Str("client", l.conn.Peer()).Str("line", l.line).Msg("invalid command")
		if err := l.conn.WriteString(protocol.InvalidCommand); err != nil {
			d.removeConn(l.conn)
			return
		}
	}
	if quit {
		d.removeConn(l.conn)
	}
}

// broadcast delivers one event line to every live client, dropping the
// ones that fail, and mirrors it to stdout.
func (d *Daemon) broadcast(line string) {
	fmt.Printf("response: %s", line)
	var dead []*server.Conn
	for _, c := range d.conns {
		if err := c.WriteString(line); err != nil {
			dead = append(dead, c)
		}
	}
	for _, c := range dead {
		d.removeConn(c)
	}
}

// handleSignal reports whether the daemon should shut down.
func (d *Daemon) handleSignal(sig os.Signal) bool {
	switch sig {
	case syscall.SIGINT:
		log.Info().Msg("interrupt signal received")
		return true
	case syscall.SIGPIPE:
		log.Warn().Msg("attempted IO to a closed socket/pipe")
	case syscall.SIGUSR1:
		d.statusDump()
	}
	return false
}

// statusDump prints a human status summary to stdout and queues a full
// status sweep on every receiver.
func (d *Daemon) statusDump() {
	fmt.Printf("receivers      :\n")
	for _, r := range d.receivers {
		fmt.Printf("  %s power=%03b sent=%d received=%d queued=%d\n",
			r.Name(), r.PowerMask(), r.CmdsSent, r.MsgsReceived, r.QueueLen())
	}
	fmt.Printf("listeners      : ")
	for _, l := range d.listeners {
		fmt.Printf("%s ", l.Addr())
	}
	fmt.Printf("\nconnections    : %d\n", len(d.conns))
	for _, r := range d.receivers {
		for _, zone := range []string{"main", "zone2", "zone3"} {
			protocol.Translate(r, "status "+zone)
		}
	}
}

// shutdown releases everything: queues, clients, listeners (closing a
// UNIX listener unlinks its socket path) and serial ports.
func (d *Daemon) shutdown() {
	for _, r := range d.receivers {
		r.DrainQueue()
		if closer, ok := r.Port().(io.Closer); ok {
			closer.Close()
		}
	}
	for _, l := range d.listeners {
		l.Close()
	}
	for _, c := range d.conns {
		c.Close()
	}
	d.conns = nil
	log.Info().Msg("shutdown complete")
}
