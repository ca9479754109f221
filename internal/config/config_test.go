package config_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/hifictl/onkyocontrol/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load([]string{"--serial", "/dev/ttyS0"})
	assert.NoError(t, err)
	assert.Equal(t, []string{"/dev/ttyS0"}, cfg.Serials)
	assert.Equal(t, []string{config.DefaultPort}, cfg.Binds, "no listener flag means the default TCP port")
	assert.Empty(t, cfg.Sockets)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level)
	assert.False(t, cfg.Daemon)
}

func TestLoadExplicitListeners(t *testing.T) {
	cfg, err := config.Load([]string{
		"--serial", "/dev/ttyS0",
		"--bind", "localhost:9000",
		"--socket", "/tmp/onkyo.sock",
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"localhost:9000"}, cfg.Binds)
	assert.Equal(t, []string{"/tmp/onkyo.sock"}, cfg.Sockets)
}

func TestLoadSocketOnly(t *testing.T) {
	cfg, err := config.Load([]string{"--serial", "/dev/ttyS0", "--socket", "/tmp/onkyo.sock"})
	assert.NoError(t, err)
	assert.Empty(t, cfg.Binds, "an explicit socket suppresses the default TCP port")
}

func TestLoadLogLevel(t *testing.T) {
	cfg, err := config.Load([]string{"--serial", "/dev/ttyS0", "--log-level", "debug"})
	assert.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level)

	cfg, err = config.Load([]string{"--serial", "/dev/ttyS0", "--log-level", "nonsense"})
	assert.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level)
}

func TestLoadRejectsMissingSerial(t *testing.T) {
	_, err := config.Load(nil)
	assert.Error(t, err)
}

func TestLoadRejectsDuplicates(t *testing.T) {
	_, err := config.Load([]string{"--serial", "/dev/ttyS0", "--serial", "/dev/ttyS0"})
	assert.Error(t, err)

	_, err = config.Load([]string{
		"--serial", "/dev/ttyS0",
		"--socket", "/tmp/onkyo.sock",
		"--socket", "/tmp/onkyo.sock",
	})
	assert.Error(t, err)
}

func TestLoadDaemonNeedsLogFile(t *testing.T) {
	_, err := config.Load([]string{"--serial", "/dev/ttyS0", "--daemon"})
	assert.Error(t, err)

	cfg, err := config.Load([]string{"--serial", "/dev/ttyS0", "--daemon", "--log", "/tmp/onkyod.log"})
	assert.NoError(t, err)
	assert.True(t, cfg.Daemon)
	assert.Equal(t, "/tmp/onkyod.log", cfg.LogFile)
}

func TestLoadVersionSkipsValidation(t *testing.T) {
	cfg, err := config.Load([]string{"--version"})
	assert.NoError(t, err)
	assert.True(t, cfg.Version)
}
