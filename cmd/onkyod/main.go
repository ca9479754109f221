package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"

	flags "github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/hifictl/onkyocontrol/internal/config"
	"github.com/hifictl/onkyocontrol/internal/daemon"
	"github.com/hifictl/onkyocontrol/internal/datadog"
	"github.com/hifictl/onkyocontrol/internal/logging"
	"github.com/hifictl/onkyocontrol/internal/receiver"
	"github.com/hifictl/onkyocontrol/internal/serialport"
	"github.com/hifictl/onkyocontrol/internal/server"
	"github.com/hifictl/onkyocontrol/system/shutdown"
)

const version = "onkyocontrol v1.1"

// daemonEnv marks the re-executed child so it does not detach again.
const daemonEnv = "ONKYOD_DAEMONIZED"

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if cfg.Daemon && os.Getenv(daemonEnv) == "" {
		daemonize()
	}

	logging.Init(cfg.Level, cfg.LogFile)
	datadog.InitMetrics(cfg.Statsd)

	log.Info().
		Strs("serial", cfg.Serials).
		Strs("bind", cfg.Binds).
		Strs("socket", cfg.Sockets).
		Msg("starting onkyocontrol")

	var closers []io.Closer

	var receivers []*receiver.Receiver
	for _, dev := range cfg.Serials {
		port, err := serialport.Open(dev)
		if err != nil {
			shutdown.ExitWithError(err, "failed to open serial device", closers...)
		}
		closers = append(closers, port)
		receivers = append(receivers, receiver.New(dev, port))
	}

	var listeners []net.Listener
	for _, bind := range cfg.Binds {
		l, err := server.OpenTCP(bind)
		if err != nil {
			shutdown.ExitWithError(err, "failed to open TCP listener", closers...)
		}
		closers = append(closers, l)
		listeners = append(listeners, l)
	}
	for _, path := range cfg.Sockets {
		l, err := server.OpenUnix(path)
		if err != nil {
			shutdown.ExitWithError(err, "failed to open UNIX listener", closers...)
		}
		closers = append(closers, l)
		listeners = append(listeners, l)
	}

	if err := daemon.New(receivers, listeners).Run(); err != nil {
		shutdown.ExitWithError(err, "daemon failed")
	}
}

// daemonize detaches by re-executing the binary in a new session; the
// parent exits once the child has started.
func daemonize() {
	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to daemonize:", err)
		os.Exit(1)
	}
	os.Exit(0)
}
