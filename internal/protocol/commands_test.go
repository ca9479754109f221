package protocol_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hifictl/onkyocontrol/internal/protocol"
)

func TestTranslateCodes(t *testing.T) {
	tests := []struct {
		line  string
		codes []string
	}{
		{"power on", []string{"PWR01"}},
		{"power off", []string{"PWR00"}},
		{"power", []string{"PWRQSTN"}},
		{"power status", []string{"PWRQSTN"}},
		{"zone2power on", []string{"ZPW01"}},
		{"zone3power off", []string{"PW300"}},

		{"volume up", []string{"MVLUP"}},
		{"volume down", []string{"MVLDOWN"}},
		{"volume 0", []string{"MVL00"}},
		{"volume 42", []string{"MVL2A"}},
		{"volume 100", []string{"MVL64"}},
		{"zone2volume 42", []string{"ZVL2A"}},
		{"zone3volume 42", []string{"VL32A"}},

		{"dbvolume -82", []string{"MVL00"}},
		{"dbvolume -40", []string{"MVL2A"}},
		{"dbvolume 18", []string{"MVL64"}},
		{"zone2dbvolume 0", []string{"ZVL52"}},

		{"mute on", []string{"AMT01"}},
		{"mute off", []string{"AMT00"}},
		{"mute toggle", []string{"AMTTG"}},
		{"zone2mute toggle", []string{"ZMTTG"}},
		{"zone3mute toggle", []string{"MT3TG"}},

		{"input dvd", []string{"SLI10"}},
		{"input DVD", []string{"SLI10"}},
		{"input cd", []string{"SLI23"}},
		{"input fm tuner", []string{"SLI24"}},
		{"zone2input off", []string{"SLZ7F"}},
		{"zone2input source", []string{"SLZ80"}},
		{"zone3input tuner", []string{"SL326"}},

		{"mode stereo", []string{"LMD00"}},
		{"mode pliigame", []string{"LMD86"}},
		{"mode neo6thx", []string{"LMD85"}},

		{"tune 97.9", []string{"TUN09790"}},
		{"tune 87.5", []string{"TUN08750"}},
		{"tune 107.9", []string{"TUN10790"}},
		{"tune 530", []string{"TUN00530"}},
		{"tune 1710", []string{"TUN01710"}},
		{"zone2tune 101.1", []string{"TUZ10110"}},
		{"zone3tune 880", []string{"TU300880"}},

		{"preset 0", []string{"PRS00"}},
		{"preset 16", []string{"PRS10"}},
		{"preset 40", []string{"PRS28"}},
		{"zone2preset 5", []string{"PRZ05"}},

		{"sleep off", []string{"SLPOFF"}},
		{"sleep 0", []string{"SLP00"}},
		{"sleep 90", []string{"SLP5A"}},
		{"sleep", []string{"SLPQSTN"}},

		{"swlevel 0", []string{"SWL00"}},
		{"swlevel -15", []string{"SWL-F"}},
		{"swlevel 12", []string{"SWL+C"}},
		{"swlevel 5", []string{"SWL+5"}},

		{"avsync 0", []string{"AVS0000"}},
		{"avsync 100", []string{"AVS1000"}},
		{"avsync 250", []string{"AVS2500"}},

		{"memory lock", []string{"MEMLOCK"}},
		{"memory unlock", []string{"MEMUNLK"}},

		{"raw PWRQSTN", []string{"PWRQSTN"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			dev := newFakeDevice()
			result, casts := protocol.Translate(dev, tt.line)
			assert.Equal(t, protocol.ResultOK, result)
			assert.Equal(t, tt.codes, dev.codes)
			assert.Empty(t, casts)
		})
	}
}

func TestTranslateInvalid(t *testing.T) {
	lines := []string{
		"garbage",
		"garbage on",
		"power maybe",
		"power toggle",
		"volume 101",
		"volume -1",
		"volume 4 2",
		"volume 42x",
		"dbvolume 19",
		"dbvolume -83",
		"preset 41",
		"avsync 251",
		"avsync -1",
		"swlevel 13",
		"swlevel -16",
		"sleep 91",
		"sleep -1",
		"memory",
		"memory wipe",
		"input off",
		"input basement",
		"mode disco",
		"tune 87.4",
		"tune 108.0",
		"tune 97.95",
		"tune 97.",
		"tune 529",
		"tune 1711",
		"tune abc",
		"status basement",
		"raw",
		"zone2sleep -1",
		"zone2sleep soon",
	}
	for _, line := range lines {
		t.Run(line, func(t *testing.T) {
			dev := newFakeDevice()
			result, _ := protocol.Translate(dev, line)
			assert.Equal(t, protocol.ResultInvalid, result)
			assert.Empty(t, dev.codes)
		})
	}
}

func TestTranslateQuit(t *testing.T) {
	dev := newFakeDevice()
	result, _ := protocol.Translate(dev, "quit")
	assert.Equal(t, protocol.ResultQuit, result)
	assert.Empty(t, dev.codes)
}

func TestTranslateStatusSweep(t *testing.T) {
	dev := newFakeDevice()
	result, _ := protocol.Translate(dev, "status")
	assert.Equal(t, protocol.ResultOK, result)
	assert.Equal(t, []string{"PWRQSTN", "MVLQSTN", "AMTQSTN", "SLIQSTN", "LMDQSTN", "TUNQSTN"}, dev.codes)

	dev = newFakeDevice()
	protocol.Translate(dev, "status zone2")
	assert.Equal(t, []string{"ZPWQSTN", "ZVLQSTN", "ZMTQSTN", "SLZQSTN", "TUZQSTN"}, dev.codes)

	dev = newFakeDevice()
	protocol.Translate(dev, "status zone3")
	assert.Equal(t, []string{"PW3QSTN", "VL3QSTN", "MT3QSTN", "SL3QSTN", "TU3QSTN"}, dev.codes)
}

func TestTranslateFakeSleep(t *testing.T) {
	dev := newFakeDevice()
	dev.remaining[protocol.Zone2] = 5
	result, casts := protocol.Translate(dev, "zone2sleep 5")
	assert.Equal(t, protocol.ResultOK, result)
	assert.Empty(t, dev.codes, "fake sleep must not reach the receiver")
	assert.Equal(t, 5*time.Minute, dev.sleepSet[protocol.Zone2])
	assert.Equal(t, []string{"OK:zone2sleep:5\n"}, casts)

	dev = newFakeDevice()
	result, casts = protocol.Translate(dev, "zone2sleep off")
	assert.Equal(t, protocol.ResultOK, result)
	assert.Equal(t, []int{protocol.Zone2}, dev.cleared)
	assert.Equal(t, []string{"OK:zone2sleep:0\n"}, casts)

	dev = newFakeDevice()
	dev.remaining[protocol.Zone3] = 2
	result, casts = protocol.Translate(dev, "zone3sleep status")
	assert.Equal(t, protocol.ResultOK, result)
	assert.Empty(t, dev.cleared)
	assert.Empty(t, dev.sleepSet)
	assert.Equal(t, []string{"OK:zone3sleep:2\n"}, casts)
}

func TestTranslateRawTooLong(t *testing.T) {
	dev := newFakeDevice()
	result, _ := protocol.Translate(dev, "raw "+strings.Repeat("X", 100))
	assert.Equal(t, protocol.ResultInvalid, result)
	assert.Empty(t, dev.codes)
}
