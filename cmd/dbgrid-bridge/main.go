package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/redbco/dbgrid/internal/bridge"
	"github.com/redbco/dbgrid/internal/bridge/igniterest"
	"github.com/redbco/dbgrid/pkg/logger"
)

var (
	Version   = "dev"     // Default version for development
	GitCommit = "unknown" // Git commit hash
	BuildTime = "unknown" // Build timestamp
)

var (
	pipeFlag     = flag.String("pipe", "", "Socket path (defaults to $"+bridge.PipeEnv+")")
	restPortFlag = flag.Int("rest-port", igniterest.DefaultRESTPort, "Ignite REST port; 0 uses the port each connect request carries")
	logLevelFlag = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	versionFlag  = flag.Bool("version", false, "Show version information and exit")
)

func printVersionInfo() {
	fmt.Printf("dbgrid-bridge %s (commit %s)\n", Version, GitCommit)
	fmt.Printf("Built: %s\n", BuildTime)
	fmt.Printf("Go version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func main() {
	flag.Parse()

	if *versionFlag {
		printVersionInfo()
		os.Exit(0)
	}

	log := logger.New("dbgrid-bridge", Version)
	level, err := logger.ParseLevel(*logLevelFlag)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(level)

	pipe := *pipeFlag
	if pipe == "" {
		pipe = os.Getenv(bridge.PipeEnv)
	}
	if pipe == "" {
		log.Fatalf("No socket path: set -pipe or %s", bridge.PipeEnv)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := &bridge.Server{
		Handler: igniterest.NewHandler(igniterest.Options{RESTPort: *restPortFlag, Logger: log}),
		Logger:  log,
	}

	log.Info("Bridge listening on %s", pipe)
	if err := server.ListenAndServe(ctx, pipe); err != nil {
		log.Errorf("Bridge server failed: %v", err)
		os.Exit(1)
	}
	log.Info("Bridge stopped")
}
