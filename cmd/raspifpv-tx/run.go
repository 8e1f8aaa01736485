package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"raspifpv/internal/config"
	"raspifpv/internal/led"
	"raspifpv/internal/replay"
	"raspifpv/internal/telemetry"
	"raspifpv/internal/udp"
)

func run(ctx context.Context, cfg config.Config) error {
	var activity *led.LED
	if cfg.LED.Enable {
		activity = led.New(led.Config{Chip: cfg.LED.Chip, GPIO: cfg.LED.GPIO, Pulse: cfg.LED.Pulse})
		if err := activity.Start(ctx); err != nil {
			log.Printf("led disabled: %v", err)
		}
		defer activity.Close()
	}

	if cfg.Replay.Enable {
		return runReplay(ctx, cfg, activity)
	}

	srcs, closeSources, err := buildSources(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSources()

	opts := telemetry.PublisherOptions{
		Interval: cfg.Telemetry.Interval,
		TTL:      cfg.Networking.TTL,
	}
	if activity != nil {
		opts.OnTick = activity.OnTick
	}
	pub, err := telemetry.NewPublisher(cfg.Networking.MulticastAddress, cfg.Networking.TelemetryPort, srcs, opts)
	if err != nil {
		return err
	}
	if err := pub.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	pub.Stop()

	st := pub.Stats()
	log.Printf("telemetry tx stopped ticks=%s sent=%s send_errors=%s",
		humanize.Comma(int64(st.Ticks)), humanize.Comma(int64(st.Sent)), humanize.Comma(int64(st.SendErrors)))
	return ctx.Err()
}

// runReplay sends a recorded datagram log to the group instead of polling
// sources. A failed send drops that datagram like the live publisher does.
func runReplay(ctx context.Context, cfg config.Config, activity *led.LED) error {
	recs, err := replay.ReadFile(cfg.Replay.Path)
	if err != nil {
		return err
	}
	dest := net.JoinHostPort(cfg.Networking.MulticastAddress, strconv.Itoa(cfg.Networking.TelemetryPort))
	sender, err := udp.NewSender(dest, udp.SenderOptions{TTL: cfg.Networking.TTL})
	if err != nil {
		return fmt.Errorf("%w: %v", telemetry.ErrSocketSetup, err)
	}
	defer sender.Close()

	log.Printf("replay starting path=%s records=%d speed=%g loop=%v dest=%s",
		cfg.Replay.Path, len(recs), cfg.Replay.Speed, cfg.Replay.Loop, dest)

	var sent, failed uint64
	var lastLogged time.Time
	err = replay.Play(ctx, recs, cfg.Replay.Speed, cfg.Replay.Loop, nil, func(b []byte) error {
		if err := sender.Send(b); err != nil {
			failed++
			if time.Since(lastLogged) >= time.Second {
				lastLogged = time.Now()
				log.Printf("replay send failed dest=%s: %v", dest, err)
			}
			return nil
		}
		sent++
		activity.Pulse()
		return nil
	})
	log.Printf("replay stopped sent=%s failed=%s", humanize.Comma(int64(sent)), humanize.Comma(int64(failed)))
	return err
}
