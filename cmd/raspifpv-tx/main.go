// Command raspifpv-tx runs on the vehicle. It polls the power, signal and
// position sources every telemetry interval and sends each sample to the
// multicast group, or replays a recorded datagram log instead.
package main

import (
	"context"
	"errors"
	"fmt"
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
		summarize   string
		showVersion bool
	)
	pflag.StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to YAML config")
	pflag.StringVar(&summarize, "summarize", "", "Print a summary of a datagram log and exit")
	pflag.BoolVar(&showVersion, "version", false, "Print version and exit")
	pflag.Parse()

	if showVersion {
		about := web.BuildInfo()
		fmt.Printf("raspifpv-tx %s %s\n", about.Version, about.GoVersion)
		return
	}
	if summarize != "" {
		if err := printLogSummary(os.Stdout, summarize); err != nil {
			log.Fatalf("summarize failed: %v", err)
		}
		return
	}

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logCloser := logging.Setup(logging.Options{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("raspifpv-tx starting config=%s", configPath)
	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("raspifpv-tx failed: %v", err)
		cancel()
		os.Exit(1)
	}
	log.Printf("raspifpv-tx stopping")
}
