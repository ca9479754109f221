package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"
)

// onkyoctl is a small operator client for the daemon: it sends one
// command over TCP or a UNIX socket and prints the events that come
// back until the connection goes quiet.

type options struct {
	Addr   string        `long:"addr" value-name:"HOST:PORT" default:"localhost:8701" description:"Daemon TCP address"`
	Socket string        `long:"socket" value-name:"PATH" description:"Daemon UNIX socket (overrides --addr)"`
	Wait   time.Duration `long:"wait" default:"500ms" description:"How long to wait for responses"`
	Args   struct {
		Command []string `positional-arg-name:"COMMAND" required:"1"`
	} `positional-args:"yes"`
}

func main() {
	opts := &options{}
	if _, err := flags.Parse(opts); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	network, addr := "tcp", opts.Addr
	if opts.Socket != "" {
		network, addr = "unix", opts.Socket
	}
	conn, err := net.Dial(network, addr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect failed:", err)
		os.Exit(1)
	}
	defer conn.Close()

	command := strings.Join(opts.Args.Command, " ")
	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		fmt.Fprintln(os.Stderr, "send failed:", err)
		os.Exit(1)
	}

	scanner := bufio.NewScanner(conn)
	for {
		conn.SetReadDeadline(time.Now().Add(opts.Wait))
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		fmt.Println(line)
		if strings.HasPrefix(line, "ERROR:Invalid Command") {
			os.Exit(1)
		}
	}
}
