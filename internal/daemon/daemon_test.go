package daemon_test

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hifictl/onkyocontrol/internal/daemon"
	"github.com/hifictl/onkyocontrol/internal/protocol"
	"github.com/hifictl/onkyocontrol/internal/receiver"
)

const testTimeout = 2 * time.Second

// setup starts a daemon over an in-memory serial link and a loopback
// TCP listener, returning our end of the serial link and the address
// clients should dial.
func setup(t *testing.T) (net.Conn, string) {
	t.Helper()
	serialOurs, serialTheirs := net.Pipe()
	r := receiver.New("testdev", serialTheirs)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go daemon.New([]*receiver.Receiver{r}, []net.Listener{l}).Run()
	t.Cleanup(func() {
		l.Close()
		serialOurs.Close()
	})
	return serialOurs, l.Addr().String()
}

// dial connects a client and consumes the greeting.
func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	br := bufio.NewReader(conn)
	assert.Equal(t, protocol.Greeting, readLine(t, conn, br))
	return conn, br
}

func readLine(t *testing.T, conn net.Conn, br *bufio.Reader) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	return line
}

// readSerialCode reads one framed command off the serial link.
func readSerialCode(t *testing.T, serial net.Conn, n int) string {
	t.Helper()
	require.NoError(t, serial.SetReadDeadline(time.Now().Add(testTimeout)))
	buf := make([]byte, n)
	_, err := io.ReadFull(serial, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestDaemonEndToEnd(t *testing.T) {
	serial, addr := setup(t)
	conn, br := dial(t, addr)

	// power on travels to the receiver in the wire envelope
	fmt.Fprintf(conn, "power on\n")
	assert.Equal(t, "!1PWR01\r\n", readSerialCode(t, serial, 9))

	// the receiver's reply is normalized and fanned out
	_, err := serial.Write([]byte("!1PWR01\x1a"))
	require.NoError(t, err)
	assert.Equal(t, "OK:power:on\n", readLine(t, conn, br))

	// volume echoes as two events
	fmt.Fprintf(conn, "volume 40\n")
	assert.Equal(t, "!1MVL28\r\n", readSerialCode(t, serial, 9))
	_, err = serial.Write([]byte("!1MVL28\x1a"))
	require.NoError(t, err)
	assert.Equal(t, "OK:volume:40\n", readLine(t, conn, br))
	assert.Equal(t, "OK:dbvolume:-42\n", readLine(t, conn, br))

	// an unknown command errors back to this client only
	fmt.Fprintf(conn, "garbage\n")
	assert.Equal(t, protocol.InvalidCommand, readLine(t, conn, br))

	// quit closes the connection
	fmt.Fprintf(conn, "quit\n")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testTimeout)))
	_, err = br.ReadString('\n')
	assert.Error(t, err)
}

func TestDaemonPowerGating(t *testing.T) {
	serial, addr := setup(t)
	conn, _ := dial(t, addr)

	// with every zone off, a mute command never reaches the wire
	fmt.Fprintf(conn, "mute on\n")
	require.NoError(t, serial.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	buf := make([]byte, 1)
	_, err := serial.Read(buf)
	assert.Error(t, err, "gated command must not be written to the receiver")

	// a power command passes the gate
	fmt.Fprintf(conn, "power on\n")
	assert.Equal(t, "!1PWR01\r\n", readSerialCode(t, serial, 9))
}

func TestDaemonPacing(t *testing.T) {
	serial, addr := setup(t)
	conn, br := dial(t, addr)

	fmt.Fprintf(conn, "power on\n")
	assert.Equal(t, "!1PWR01\r\n", readSerialCode(t, serial, 9))
	_, err := serial.Write([]byte("!1PWR01\x1a"))
	require.NoError(t, err)
	assert.Equal(t, "OK:power:on\n", readLine(t, conn, br))

	// two distinct volume commands within the pacing window are both
	// queued, and the writes are at least a pacing interval apart
	fmt.Fprintf(conn, "volume 42\nvolume 43\n")
	assert.Equal(t, "!1MVL2A\r\n", readSerialCode(t, serial, 9))
	first := time.Now()
	assert.Equal(t, "!1MVL2B\r\n", readSerialCode(t, serial, 9))
	gap := time.Since(first)
	assert.GreaterOrEqual(t, gap, receiver.CommandWait-10*time.Millisecond)
}

func TestDaemonBroadcastIsolation(t *testing.T) {
	serial, addr := setup(t)
	connA, brA := dial(t, addr)
	connB, brB := dial(t, addr)

	// client A's mistake stays between A and the daemon
	fmt.Fprintf(connA, "garbage\n")
	assert.Equal(t, protocol.InvalidCommand, readLine(t, connA, brA))

	// a receiver event reaches both clients; B never saw the error
	_, err := serial.Write([]byte("!1AMT01\x1a"))
	require.NoError(t, err)
	assert.Equal(t, "OK:mute:on\n", readLine(t, connA, brA))
	assert.Equal(t, "OK:mute:on\n", readLine(t, connB, brB))
}

func TestDaemonFakeSleepBroadcast(t *testing.T) {
	_, addr := setup(t)
	conn, br := dial(t, addr)

	fmt.Fprintf(conn, "zone2sleep 5\n")
	assert.Equal(t, "OK:zone2sleep:5\n", readLine(t, conn, br))

	fmt.Fprintf(conn, "zone2sleep off\n")
	assert.Equal(t, "OK:zone2sleep:0\n", readLine(t, conn, br))
}
