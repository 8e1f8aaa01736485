package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"raspifpv/internal/config"
	"raspifpv/internal/flightlog"
	"raspifpv/internal/overlay"
	"raspifpv/internal/replay"
	"raspifpv/internal/telemetry"
	"raspifpv/internal/web"
	"raspifpv/internal/wire"
)

const summaryEvery = time.Minute

type receiver struct {
	cfg     config.Config
	sub     *telemetry.Subscriber
	samples *web.SampleBroadcaster

	record   *replay.Writer
	recorder *flightlog.Recorder
	store    *flightlog.SqliteStore

	recordErrOnce sync.Once
}

func newReceiver(cfg config.Config) (*receiver, error) {
	sub, err := telemetry.NewSubscriber(cfg.Networking.MulticastAddress, cfg.Networking.TelemetryPort)
	if err != nil {
		return nil, err
	}
	sub.SetInterface(cfg.Networking.Interface)
	return &receiver{cfg: cfg, sub: sub, samples: web.NewSampleBroadcaster()}, nil
}

// observe runs on the listener goroutine for every decoded sample. Every
// consumer behind it is non-blocking or buffered.
func (r *receiver) observe(s wire.Sample) {
	r.samples.Publish(s)
	if r.recorder != nil {
		r.recorder.Observe(s)
	}
	if r.record != nil {
		if err := r.record.WriteSample(time.Now(), s); err != nil {
			r.recordErrOnce.Do(func() { log.Printf("record write failed path=%s: %v", r.cfg.Record.Path, err) })
		}
	}
}

func (r *receiver) start(ctx context.Context) error {
	if r.cfg.Record.Enable {
		w, err := replay.CreateWriter(r.cfg.Record.Path)
		if err != nil {
			return err
		}
		r.record = w
		log.Printf("recording datagrams path=%s", r.cfg.Record.Path)
	}
	if r.cfg.FlightLog.Enable {
		r.store = flightlog.NewSqliteStore(r.cfg.FlightLog.Path)
		r.recorder = flightlog.NewRecorder(r.store, "multicast "+r.sub.Addr(), r.cfg.FlightLog.QueueLen)
		if err := r.recorder.Start(ctx); err != nil {
			return err
		}
		log.Printf("flight log path=%s", r.cfg.FlightLog.Path)
	}

	r.sub.SetObserver(r.observe)
	if err := r.sub.Start(ctx); err != nil {
		// Keep serving status so the failure is visible there.
		log.Printf("telemetry rx not running: %v", err)
	}
	return nil
}

func (r *receiver) stop() {
	r.sub.Stop()
	if r.recorder != nil {
		r.recorder.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			log.Printf("flight log close failed: %v", err)
		}
	}
	if r.record != nil {
		if err := r.record.Close(); err != nil {
			log.Printf("record close failed: %v", err)
		}
	}
}

func (r *receiver) logSummary() {
	st := r.sub.Stats()
	snap := r.sub.Snapshot()
	log.Printf("telemetry rx received=%s dropped=%s running=%v home=%v",
		humanize.Comma(int64(st.Received)), humanize.Comma(int64(st.Dropped)), st.Running, snap.HasHome())
}

func (r *receiver) handler(settingsPath string, logs *web.LogBuffer) http.Handler {
	renderer, err := overlay.NewRenderer()
	if err != nil {
		log.Printf("overlay renderer unavailable: %v", err)
	}
	view := web.NewView(r.sub.Snapshot, renderer, r.cfg.Web.Width, r.cfg.Web.Height, r.cfg.Telemetry.ShowAltitude)

	status := web.NewStatus(r.sub)
	status.SetStatic("rx", r.sub.Addr())
	if r.recorder != nil {
		status.SetFlightLog(r.recorder.Stats)
	}

	settings := web.SettingsStore{
		ConfigPath: settingsPath,
		Apply: func(c config.Config) error {
			view.SetShowAltitude(c.Telemetry.ShowAltitude)
			view.SetSize(c.Web.Width, c.Web.Height)
			return nil
		},
	}
	var flights web.FlightStore
	if r.store != nil {
		flights = r.store
	}
	return web.Handler(status, view, r.samples, settings, logs, flights)
}

func run(ctx context.Context, cfg config.Config, settingsPath string, logs *web.LogBuffer) error {
	r, err := newReceiver(cfg)
	if err != nil {
		return err
	}
	if err := r.start(ctx); err != nil {
		r.stop()
		return err
	}
	defer r.stop()

	var wg sync.WaitGroup
	if cfg.Web.Listen != "" {
		h := r.handler(settingsPath, logs)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("web listening addr=%s", cfg.Web.Listen)
			if err := web.Serve(ctx, cfg.Web.Listen, h); err != nil && ctx.Err() == nil {
				log.Printf("web server stopped: %v", err)
			}
		}()
	}

	ticker := time.NewTicker(summaryEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			r.logSummary()
			return ctx.Err()
		case <-ticker.C:
			r.logSummary()
		}
	}
}
