// Command butlerd runs the butler daemon in the foreground. It is the
// systemd-friendly twin of the hidden "butler daemon" subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"butler/internal/config"
	"butler/internal/daemonrun"
)

func main() {
	var configPath string
	var socketPath string
	var logLevel string
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.StringVar(&socketPath, "socket", "", "path to the daemon socket")
	flag.StringVar(&logLevel, "log-level", "", "override the configured log level")
	flag.Parse()

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	err = daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		SocketPath: socketPath,
		LogLevel:   logLevel,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
