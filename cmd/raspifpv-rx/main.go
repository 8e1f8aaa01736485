// Command raspifpv-rx runs on the ground station. It joins the telemetry
// multicast group, keeps the latest snapshot, optionally records and logs
// the samples, and serves the status API and compass overlay over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"raspifpv/internal/config"
	"raspifpv/internal/logging"
	"raspifpv/internal/web"
)

func main() {
	var (
		configPath  string
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to YAML config")
	pflag.BoolVar(&showVersion, "version", false, "Print version and exit")
	pflag.Parse()

	if showVersion {
		about := web.BuildInfo()
		fmt.Printf("raspifpv-rx %s %s\n", about.Version, about.GoVersion)
		return
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	logs := web.NewLogBuffer(2000)
	logCloser := logging.Setup(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Extra:      []io.Writer{logs},
	})
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settingsPath := ""
	if _, err := os.Stat(configPath); err == nil {
		settingsPath = configPath
	}

	log.Printf("raspifpv-rx starting config=%s", configPath)
	if err := run(ctx, cfg, settingsPath, logs); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("raspifpv-rx failed: %v", err)
		cancel()
		os.Exit(1)
	}
	log.Printf("raspifpv-rx stopping")
}
