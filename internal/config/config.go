package config

import (
	"fmt"
	"strings"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog"
)

// DefaultPort is the TCP port listened on when no --bind or --socket
// flag is given.
const DefaultPort = "8701"

// Options is the command-line surface, parsed by go-flags.
type Options struct {
	Bind     []string `long:"bind" value-name:"[HOST:]PORT" description:"Listen for clients on a TCP address (repeatable)"`
	Socket   []string `long:"socket" value-name:"PATH" description:"Listen for clients on a UNIX domain socket (repeatable)"`
	Serial   []string `long:"serial" value-name:"DEVICE" description:"Serial device a receiver is connected to (repeatable)"`
	LogFile  string   `long:"log" value-name:"FILE" description:"Append log output to FILE instead of stderr"`
	LogLevel string   `long:"log-level" default:"info" description:"Log level (debug, info, warn, error)"`
	Daemon   bool     `long:"daemon" description:"Detach from the terminal and run in the background"`
	Statsd   string   `long:"statsd" value-name:"ADDR" description:"DogStatsD endpoint to emit metrics to"`
	Version  bool     `short:"V" long:"version" description:"Print the version and exit"`
}

// Config is the validated runtime configuration.
type Config struct {
	Binds   []string
	Sockets []string
	Serials []string
	LogFile string
	Level   zerolog.Level
	Daemon  bool
	Statsd  string
	Version bool
}

// Load parses the command line into a validated Config.
func Load(args []string) (*Config, error) {
	opts := &Options{}
	rest, err := flags.ParseArgs(opts, args)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}

	cfg := &Config{
		Binds:   opts.Bind,
		Sockets: opts.Socket,
		Serials: opts.Serial,
		LogFile: opts.LogFile,
		Level:   parseLogLevel(opts.LogLevel),
		Daemon:  opts.Daemon,
		Statsd:  opts.Statsd,
		Version: opts.Version,
	}
	if cfg.Version {
		return cfg, nil
	}
	if len(cfg.Binds) == 0 && len(cfg.Sockets) == 0 {
		cfg.Binds = []string{DefaultPort}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (cfg *Config) validate() error {
	if len(cfg.Serials) == 0 {
		return fmt.Errorf("no --serial device given, nothing to control")
	}
	seen := map[string]string{}
	for _, s := range cfg.Serials {
		if seen[s] == "serial" {
			return fmt.Errorf("serial device %q given twice", s)
		}
		seen[s] = "serial"
	}
	for _, p := range cfg.Sockets {
		if seen[p] == "socket" {
			return fmt.Errorf("socket path %q given twice", p)
		}
		seen[p] = "socket"
	}
	if cfg.Daemon && cfg.LogFile == "" {
		return fmt.Errorf("--daemon requires --log, the terminal goes away")
	}
	return nil
}
