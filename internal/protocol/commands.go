package protocol

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// handlerFunc turns one client argument into receiver codes (enqueued on
// dev) and zero or more immediate broadcast lines.
type handlerFunc func(dev Device, prefix, arg string) (Result, []string)

type command struct {
	hash    uint64
	name    string
	prefix  string
	handler handlerFunc
	fake    bool
}

var commandIndex map[uint64]*command

func init() {
	cmds := []command{
		{name: "power", prefix: "PWR", handler: handleBoolean},
		{name: "volume", prefix: "MVL", handler: rangedHex(0, 100, 0)},
		{name: "dbvolume", prefix: "MVL", handler: rangedHex(-82, 18, 82)},
		{name: "mute", prefix: "AMT", handler: handleBoolean},
		{name: "input", prefix: "SLI", handler: handleInput},
		{name: "mode", prefix: "LMD", handler: handleMode},
		{name: "tune", prefix: "TUN", handler: handleTune},
		{name: "preset", prefix: "PRS", handler: rangedHex(0, 40, 0)},
		{name: "sleep", prefix: "SLP", handler: handleSleep},
		{name: "swlevel", prefix: "SWL", handler: handleSwlevel},
		{name: "avsync", prefix: "AVS", handler: handleAvsync},
		{name: "memory", prefix: "MEM", handler: handleMemory},
		{name: "status", prefix: "", handler: handleStatus},
		{name: "raw", prefix: "", handler: handleRaw},
		{name: "quit", prefix: "", handler: handleQuit},

		{name: "zone2power", prefix: "ZPW", handler: handleBoolean},
		{name: "zone2volume", prefix: "ZVL", handler: rangedHex(0, 100, 0)},
		{name: "zone2dbvolume", prefix: "ZVL", handler: rangedHex(-82, 18, 82)},
		{name: "zone2mute", prefix: "ZMT", handler: handleBoolean},
		{name: "zone2input", prefix: "SLZ", handler: handleInput},
		{name: "zone2tune", prefix: "TUZ", handler: handleTune},
		{name: "zone2preset", prefix: "PRZ", handler: rangedHex(0, 40, 0)},
		{name: "zone2sleep", prefix: "", handler: fakeSleep(Zone2), fake: true},

		{name: "zone3power", prefix: "PW3", handler: handleBoolean},
		{name: "zone3volume", prefix: "VL3", handler: rangedHex(0, 100, 0)},
		{name: "zone3dbvolume", prefix: "VL3", handler: rangedHex(-82, 18, 82)},
		{name: "zone3mute", prefix: "MT3", handler: handleBoolean},
		{name: "zone3input", prefix: "SL3", handler: handleInput},
		{name: "zone3tune", prefix: "TU3", handler: handleTune},
		{name: "zone3preset", prefix: "PR3", handler: rangedHex(0, 40, 0)},
		{name: "zone3sleep", prefix: "", handler: fakeSleep(Zone3), fake: true},
	}

	commandIndex = make(map[uint64]*command, len(cmds))
	for i := range cmds {
		cmds[i].hash = Hash(cmds[i].name)
		commandIndex[cmds[i].hash] = &cmds[i]
	}
}

// Translate parses one client command line and dispatches it against the
// given device. Returned broadcast lines (if any) must be fanned out to
// every client by the caller.
func Translate(dev Device, line string) (Result, []string) {
	name, arg := line, ""
	if idx := strings.IndexByte(line, ' '); idx >= 0 {
		name, arg = line[:idx], line[idx+1:]
	}

	cmd, ok := commandIndex[Hash(name)]
	if !ok {
		return ResultInvalid, nil
	}
	return cmd.handler(dev, cmd.prefix, arg)
}

// cmdAttempt queues prefix+suffix on the device, rejecting anything that
// would not fit in the wire envelope.
func cmdAttempt(dev Device, prefix, suffix string) (Result, []string) {
	code := prefix + suffix
	if len(code) > maxCodeLen {
		return ResultInvalid, nil
	}
	dev.EnqueueCommand(code)
	return ResultOK, nil
}

// standard resolves the argument values every queryable command accepts.
func standard(arg string) (string, bool) {
	switch arg {
	case "", "status":
		return "QSTN", true
	case "up":
		return "UP", true
	case "down":
		return "DOWN", true
	}
	return "", false
}

func handleBoolean(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	switch arg {
	case "on":
		return cmdAttempt(dev, prefix, "01")
	case "off":
		return cmdAttempt(dev, prefix, "00")
	case "toggle":
		// only the mute family knows a toggle code
		if prefix == "AMT" || prefix == "ZMT" || prefix == "MT3" {
			return cmdAttempt(dev, prefix, "TG")
		}
	}
	return ResultInvalid, nil
}

// rangedHex builds a handler accepting integers in [lo, hi], encoded as a
// two-digit upper-case hex value after adding offset.
func rangedHex(lo, hi, offset int) handlerFunc {
	return func(dev Device, prefix, arg string) (Result, []string) {
		if suffix, ok := standard(arg); ok {
			return cmdAttempt(dev, prefix, suffix)
		}
		level, err := strconv.Atoi(arg)
		if err != nil || level < lo || level > hi {
			return ResultInvalid, nil
		}
		return cmdAttempt(dev, prefix, fmt.Sprintf("%02X", level+offset))
	}
}

func handleSwlevel(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	level, err := strconv.Atoi(arg)
	if err != nil || level < -15 || level > 12 {
		return ResultInvalid, nil
	}
	switch {
	case level == 0:
		return cmdAttempt(dev, prefix, "00")
	case level > 0:
		return cmdAttempt(dev, prefix, fmt.Sprintf("+%X", level))
	default:
		return cmdAttempt(dev, prefix, fmt.Sprintf("-%X", -level))
	}
}

func handleAvsync(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	ms, err := strconv.Atoi(arg)
	if err != nil || ms < 0 || ms > 250 {
		return ResultInvalid, nil
	}
	// the receiver wants the delay in tenths of a millisecond
	return cmdAttempt(dev, prefix, fmt.Sprintf("%03d0", ms))
}

func handleInput(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	name := strings.ToUpper(arg)
	if prefix == "SLZ" || prefix == "SL3" {
		// zone-only input selections
		switch name {
		case "OFF":
			return cmdAttempt(dev, prefix, "7F")
		case "SOURCE":
			return cmdAttempt(dev, prefix, "80")
		}
	}
	code, ok := inputCodes[name]
	if !ok {
		return ResultInvalid, nil
	}
	return cmdAttempt(dev, prefix, code)
}

func handleMode(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	code, ok := modeCodes[strings.ToUpper(arg)]
	if !ok {
		return ResultInvalid, nil
	}
	return cmdAttempt(dev, prefix, code)
}

func handleTune(dev Device, prefix, arg string) (Result, []string) {
	if suffix, ok := standard(arg); ok {
		return cmdAttempt(dev, prefix, suffix)
	}
	if dot := strings.IndexByte(arg, '.'); dot >= 0 {
		// FM: integer MHz plus exactly one fractional digit, 87.5..107.9
		mhz, err := strconv.Atoi(arg[:dot])
		if err != nil {
			return ResultInvalid, nil
		}
		frac := arg[dot+1:]
		if len(frac) != 1 || frac[0] < '0' || frac[0] > '9' {
			return ResultInvalid, nil
		}
		tenth := int(frac[0] - '0')
		if mhz < 87 || mhz > 107 || (mhz == 87 && tenth < 5) {
			return ResultInvalid, nil
		}
		return cmdAttempt(dev, prefix, fmt.Sprintf("%05d", mhz*100+tenth*10))
	}
	// AM: whole kHz, 530..1710
	khz, err := strconv.Atoi(arg)
	if err != nil || khz < 530 || khz > 1710 {
		return ResultInvalid, nil
	}
	return cmdAttempt(dev, prefix, fmt.Sprintf("%05d", khz))
}

func handleSleep(dev Device, prefix, arg string) (Result, []string) {
	switch arg {
	case "", "status":
		return cmdAttempt(dev, prefix, "QSTN")
	case "off":
		return cmdAttempt(dev, prefix, "OFF")
	}
	mins, err := strconv.Atoi(arg)
	if err != nil || mins < 0 || mins > 90 {
		return ResultInvalid, nil
	}
	return cmdAttempt(dev, prefix, fmt.Sprintf("%02X", mins))
}

func handleMemory(dev Device, prefix, arg string) (Result, []string) {
	switch arg {
	case "lock":
		return cmdAttempt(dev, prefix, "LOCK")
	case "unlock":
		return cmdAttempt(dev, prefix, "UNLK")
	}
	return ResultInvalid, nil
}

// statusQueries lists the QSTN sweep issued for each zone.
var statusQueries = map[string][]string{
	"main":  {"PWR", "MVL", "AMT", "SLI", "LMD", "TUN"},
	"zone2": {"ZPW", "ZVL", "ZMT", "SLZ", "TUZ"},
	"zone3": {"PW3", "VL3", "MT3", "SL3", "TU3"},
}

func handleStatus(dev Device, _, arg string) (Result, []string) {
	zone := arg
	if zone == "" {
		zone = "main"
	}
	prefixes, ok := statusQueries[zone]
	if !ok {
		return ResultInvalid, nil
	}
	for _, p := range prefixes {
		dev.EnqueueCommand(p + "QSTN")
	}
	return ResultOK, nil
}

func handleRaw(dev Device, _, arg string) (Result, []string) {
	if arg == "" {
		return ResultInvalid, nil
	}
	return cmdAttempt(dev, "", arg)
}

func handleQuit(Device, string, string) (Result, []string) {
	return ResultQuit, nil
}

// fakeSleep builds the handler for the virtual zone sleep timers. These
// commands never reach the receiver; expiry is the daemon synthesizing a
// zone power-off.
func fakeSleep(zone int) handlerFunc {
	return func(dev Device, _, arg string) (Result, []string) {
		switch arg {
		case "", "off":
			dev.ClearZoneSleep(zone)
		case "status":
			// report only
		default:
			mins, err := strconv.Atoi(arg)
			if err != nil || mins < 0 {
				return ResultInvalid, nil
			}
			dev.SetZoneSleep(zone, time.Duration(mins)*time.Minute)
		}
		return ResultOK, []string{FakeSleepStatus(dev, zone)}
	}
}

// FakeSleepStatus renders the countdown broadcast for a zone sleep timer.
func FakeSleepStatus(dev Device, zone int) string {
	return fmt.Sprintf("OK:zone%dsleep:%d\n", zone, dev.SleepRemaining(zone))
}
