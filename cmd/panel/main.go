package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/luchaneitor/tecnoacceso-web/internal/cli"
	"github.com/luchaneitor/tecnoacceso-web/internal/config"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	args, err := parseFlags(cfg, os.Args[1:])
	if err != nil {
		return err
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
		logger.Debugf("Config: ServerURL=%s, Home=%s", cfg.ServerURL, cfg.Home)
	}

	if len(args) == 0 {
		return cli.RunCommand(cfg)
	}

	switch args[0] {
	case "login":
		return cli.LoginCommand(cfg, args[1:])
	case "logout":
		return cli.LogoutCommand(cfg)
	case "run":
		return cli.RunCommand(cfg)
	case "help", "--help", "-h":
		printUsage()
		return nil
	case "version", "--version", "-v":
		fmt.Println("tecnoacceso-panel v1.0.0")
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func parseFlags(cfg *config.Config, args []string) ([]string, error) {
	fs := flag.NewFlagSet("panel", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	serverURL := fs.String("server", "", "Panel server base URL")
	bridgeURL := fs.String("bridge", "", "Wireless bridge websocket URL")
	deviceName := fs.String("device", "", "Advertised device name to connect to")
	debug := fs.Bool("debug", false, "Enable debug logging")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showHelp {
		printUsage()
		os.Exit(0)
	}

	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *bridgeURL != "" {
		cfg.BridgeURL = *bridgeURL
	}
	if *deviceName != "" {
		cfg.DeviceName = *deviceName
	}
	if *debug {
		cfg.Debug = true
	}

	return fs.Args(), nil
}

func printUsage() {
	fmt.Println(`Usage: panel [flags] [command]

Commands:
  login [user] [pass]  authenticate and store the session
  logout               clear the stored session
  run                  start the interactive control panel (default)
  version              print version

Flags:
  --server URL    panel server base URL (default http://localhost:3005)
  --bridge URL    wireless bridge websocket URL (simulation mode if unset)
  --device NAME   advertised device name (default TecnoAcceso)
  --debug         enable debug logging`)
}
