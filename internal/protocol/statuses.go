package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// ErrNoMarker is returned when a receiver message carries no "!1" frame
// marker and therefore cannot be parsed.
var ErrNoMarker = errors.New("no start-of-frame marker in receiver message")

type status struct {
	hash  uint64
	code  string
	event string
}

type powerStatus struct {
	hash  uint64
	code  string
	event string
	zone  int
	on    bool
}

// statuses maps every fixed-text receiver code to its broadcast line.
// Codes with numeric arguments (volume, tune, preset, sleep, swlevel,
// avsync) are decoded separately in Parse.
var statuses = [][2]string{
	{"AMT00", "OK:mute:off\n"},
	{"AMT01", "OK:mute:on\n"},

	{"SLI00", "OK:input:DVR\n"},
	{"SLI01", "OK:input:Cable\n"},
	{"SLI02", "OK:input:TV\n"},
	{"SLI03", "OK:input:AUX\n"},
	{"SLI10", "OK:input:DVD\n"},
	{"SLI20", "OK:input:Tape\n"},
	{"SLI22", "OK:input:Phono\n"},
	{"SLI23", "OK:input:CD\n"},
	{"SLI24", "OK:input:FM Tuner\n"},
	{"SLI25", "OK:input:AM Tuner\n"},
	{"SLI26", "OK:input:Tuner\n"},
	{"SLI30", "OK:input:Multichannel\n"},
	{"SLI31", "OK:input:XM Radio\n"},
	{"SLI32", "OK:input:Sirius Radio\n"},
	{"SLIFF", "OK:input:Audyssey Speaker Setup\n"},

	{"LMD00", "OK:mode:Stereo\n"},
	{"LMD01", "OK:mode:Direct\n"},
	{"LMD0C", "OK:mode:All Channel Stereo\n"},
	{"LMD0F", "OK:mode:Mono\n"},
	{"LMD11", "OK:mode:Pure Audio\n"},
	{"LMD13", "OK:mode:Full Mono\n"},
	{"LMD40", "OK:mode:Straight Decode\n"},
	{"LMD42", "OK:mode:THX Cinema\n"},
	{"LMD80", "OK:mode:Pro Logic IIx Movie\n"},
	{"LMD81", "OK:mode:Pro Logic IIx Music\n"},
	{"LMD82", "OK:mode:Neo:6 Cinema\n"},
	{"LMD83", "OK:mode:Neo:6 Music\n"},
	{"LMD84", "OK:mode:PLIIx THX Cinema\n"},
	{"LMD85", "OK:mode:Neo:6 THX Cinema\n"},
	{"LMD86", "OK:mode:Pro Logic IIx Game\n"},
	{"LMD88", "OK:mode:Neural THX\n"},
	{"LMDN/A", "ERROR:mode:Not Available\n"},

	{"ZMT00", "OK:zone2mute:off\n"},
	{"ZMT01", "OK:zone2mute:on\n"},

	{"SLZ00", "OK:zone2input:DVR\n"},
	{"SLZ01", "OK:zone2input:Cable\n"},
	{"SLZ02", "OK:zone2input:TV\n"},
	{"SLZ03", "OK:zone2input:AUX\n"},
	{"SLZ10", "OK:zone2input:DVD\n"},
	{"SLZ20", "OK:zone2input:Tape\n"},
	{"SLZ22", "OK:zone2input:Phono\n"},
	{"SLZ23", "OK:zone2input:CD\n"},
	{"SLZ24", "OK:zone2input:FM Tuner\n"},
	{"SLZ25", "OK:zone2input:AM Tuner\n"},
	{"SLZ26", "OK:zone2input:Tuner\n"},
	{"SLZ30", "OK:zone2input:Multichannel\n"},
	{"SLZ31", "OK:zone2input:XM Radio\n"},
	{"SLZ32", "OK:zone2input:Sirius Radio\n"},
	{"SLZ7F", "OK:zone2input:Off\n"},
	{"SLZ80", "OK:zone2input:Source\n"},

	{"MT300", "OK:zone3mute:off\n"},
	{"MT301", "OK:zone3mute:on\n"},

	{"SL300", "OK:zone3input:DVR\n"},
	{"SL301", "OK:zone3input:Cable\n"},
	{"SL302", "OK:zone3input:TV\n"},
	{"SL303", "OK:zone3input:AUX\n"},
	{"SL310", "OK:zone3input:DVD\n"},
	{"SL320", "OK:zone3input:Tape\n"},
	{"SL322", "OK:zone3input:Phono\n"},
	{"SL323", "OK:zone3input:CD\n"},
	{"SL324", "OK:zone3input:FM Tuner\n"},
	{"SL325", "OK:zone3input:AM Tuner\n"},
	{"SL326", "OK:zone3input:Tuner\n"},
	{"SL330", "OK:zone3input:Multichannel\n"},
	{"SL331", "OK:zone3input:XM Radio\n"},
	{"SL332", "OK:zone3input:Sirius Radio\n"},
	{"SL37F", "OK:zone3input:Off\n"},
	{"SL380", "OK:zone3input:Source\n"},

	{"DIF00", "OK:display:Selector + Volume\n"},
	{"DIF01", "OK:display:Selector + Listening Mode\n"},
	{"DIF02", "OK:display:Other\n"},

	{"DIM00", "OK:dimmer:Bright\n"},
	{"DIM01", "OK:dimmer:Dim\n"},
	{"DIM02", "OK:dimmer:Dark\n"},
	{"DIM08", "OK:dimmer:Bright (LED off)\n"},

	{"LTN00", "OK:latenight:off\n"},
	{"LTN01", "OK:latenight:low\n"},
	{"LTN02", "OK:latenight:high\n"},

	{"RAS00", "OK:re-eq:off\n"},
	{"RAS01", "OK:re-eq:on\n"},

	{"ADY00", "OK:audyssey:off\n"},
	{"ADY01", "OK:audyssey:on\n"},

	{"ADQ00", "OK:dynamiceq:off\n"},
	{"ADQ01", "OK:dynamiceq:on\n"},

	{"HDO00", "OK:hdmiout:off\n"},
	{"HDO01", "OK:hdmiout:on\n"},

	{"RES00", "OK:resolution:Through\n"},
	{"RES01", "OK:resolution:Auto\n"},
	{"RES02", "OK:resolution:480p\n"},
	{"RES03", "OK:resolution:720p\n"},
	{"RES04", "OK:resolution:1080i\n"},
	{"RES05", "OK:resolution:1080p\n"},

	{"SLA00", "OK:audioselector:Auto\n"},
	{"SLA01", "OK:audioselector:Multichannel\n"},
	{"SLA02", "OK:audioselector:Analog\n"},
	{"SLA03", "OK:audioselector:iLink\n"},
	{"SLA04", "OK:audioselector:HDMI\n"},

	{"TGA00", "OK:triggera:off\n"},
	{"TGA01", "OK:triggera:on\n"},
	{"TGB00", "OK:triggerb:off\n"},
	{"TGB01", "OK:triggerb:on\n"},
	{"TGC00", "OK:triggerc:off\n"},
	{"TGC01", "OK:triggerc:on\n"},

	{"MEMLOCK", "OK:memory:locked\n"},
	{"MEMUNLK", "OK:memory:unlocked\n"},
}

// powerStatuses are the codes that additionally flip a bit in the
// receiver's power mask.
var powerStatuses = []powerStatus{
	{code: "PWR00", event: "OK:power:off\n", zone: ZoneMain, on: false},
	{code: "PWR01", event: "OK:power:on\n", zone: ZoneMain, on: true},
	{code: "ZPW00", event: "OK:zone2power:off\n", zone: Zone2, on: false},
	{code: "ZPW01", event: "OK:zone2power:on\n", zone: Zone2, on: true},
	{code: "PW300", event: "OK:zone3power:off\n", zone: Zone3, on: false},
	{code: "PW301", event: "OK:zone3power:on\n", zone: Zone3, on: true},
}

// inputCodes is the client-facing input name table shared by the main
// and zone input commands.
var inputCodes = map[string]string{
	"DVR":          "00",
	"CABLE":        "01",
	"TV":           "02",
	"AUX":          "03",
	"DVD":          "10",
	"TAPE":         "20",
	"PHONO":        "22",
	"CD":           "23",
	"FM":           "24",
	"FM TUNER":     "24",
	"AM":           "25",
	"AM TUNER":     "25",
	"TUNER":        "26",
	"MULTICH":      "30",
	"MULTICHANNEL": "30",
	"XM":           "31",
	"SIRIUS":       "32",
}

// modeCodes is the client-facing listening mode name table.
var modeCodes = map[string]string{
	"STEREO":      "00",
	"DIRECT":      "01",
	"ALLCHSTEREO": "0C",
	"MONO":        "0F",
	"PUREAUDIO":   "11",
	"FULLMONO":    "13",
	"STRAIGHT":    "40",
	"THX":         "42",
	"THXCINEMA":   "42",
	"PLIIMOVIE":   "80",
	"PLIIMUSIC":   "81",
	"NEO6CINEMA":  "82",
	"NEO6MUSIC":   "83",
	"PLIITHX":     "84",
	"NEO6THX":     "85",
	"PLIIGAME":    "86",
	"NEURALTHX":   "88",
}

var (
	statusIndex map[uint64]*status
	powerIndex  map[uint64]*powerStatus
)

func init() {
	statusIndex = make(map[uint64]*status, len(statuses))
	for _, row := range statuses {
		st := &status{hash: Hash(row[0]), code: row[0], event: row[1]}
		statusIndex[st.hash] = st
	}
	powerIndex = make(map[uint64]*powerStatus, len(powerStatuses))
	for i := range powerStatuses {
		ps := &powerStatuses[i]
		ps.hash = Hash(ps.code)
		powerIndex[ps.hash] = ps
	}
}

// Parse decodes one message read from the receiver into broadcast lines.
// The buffer may carry arbitrary leading noise, NUL bytes included; the
// payload starts after the "!1" marker and runs to the end of the buffer
// (the transport has already stripped the frame terminator). Power
// messages update the device's power mask as a side effect.
func Parse(dev Device, buf []byte) ([]string, error) {
	idx := bytes.Index(buf, []byte(StartRecv))
	if idx < 0 {
		return nil, ErrNoMarker
	}
	payload := string(bytes.TrimRight(buf[idx+len(StartRecv):], "\x00\r\n"))

	h := Hash(payload)
	if st, ok := statusIndex[h]; ok {
		return []string{st.event}, nil
	}
	if ps, ok := powerIndex[h]; ok {
		dev.SetPower(ps.zone, ps.on)
		return []string{ps.event}, nil
	}

	if len(payload) >= 3 {
		if events := parseNumeric(payload[:3], payload[3:]); events != nil {
			return events, nil
		}
	}
	return []string{fmt.Sprintf("OK:todo:%s\n", payload)}, nil
}

// parseNumeric decodes the handful of status families carrying a numeric
// argument. Returns nil when the prefix is not one of them.
func parseNumeric(prefix, arg string) []string {
	switch prefix {
	case "MVL", "ZVL", "VL3":
		level := parseInt(arg, 16)
		zone := ""
		switch prefix {
		case "ZVL":
			zone = "zone2"
		case "VL3":
			zone = "zone3"
		}
		return []string{
			fmt.Sprintf("OK:%svolume:%d\n", zone, level),
			fmt.Sprintf("OK:%sdbvolume:%d\n", zone, level-82),
		}
	case "TUN", "TUZ", "TU3":
		freq := parseInt(arg, 10)
		zone := zoneKey(prefix[2])
		if freq > 8000 {
			// FM, e.g. 09790 for 97.9 MHz
			return []string{fmt.Sprintf("OK:%stune:%d.%d FM\n", zone, freq/100, (freq/10)%10)}
		}
		return []string{fmt.Sprintf("OK:%stune:%d AM\n", zone, freq)}
	case "PRS", "PRZ", "PR3":
		return []string{fmt.Sprintf("OK:%spreset:%d\n", zoneKey(prefix[2]), parseInt(arg, 16))}
	case "SLP":
		return []string{fmt.Sprintf("OK:sleep:%d\n", parseInt(arg, 16))}
	case "SWL":
		return []string{fmt.Sprintf("OK:swlevel:%+d\n", parseInt(arg, 16))}
	case "AVS":
		return []string{fmt.Sprintf("OK:avsync:%d\n", parseInt(arg, 10)/10)}
	}
	return nil
}

// zoneKey maps the distinguishing byte of a numeric-family prefix to the
// broadcast key prefix ("" for main).
func zoneKey(c byte) string {
	switch c {
	case 'Z':
		return "zone2"
	case '3':
		return "zone3"
	}
	return ""
}

// parseInt mirrors strtol: parse as far as possible, yielding 0 for
// garbage, so an unexpected suffix still produces a well-formed event.
func parseInt(s string, base int) int64 {
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	for end < len(s) && digitValid(s[end], base) {
		end++
	}
	v, err := strconv.ParseInt(s[:end], base, 64)
	if err != nil {
		return 0
	}
	return v
}

func digitValid(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return int(c-'0') < base
	case c >= 'a' && c <= 'f':
		return int(c-'a'+10) < base
	case c >= 'A' && c <= 'F':
		return int(c-'A'+10) < base
	}
	return false
}
