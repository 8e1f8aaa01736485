package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var errNoRenderer = errors.New("overlay renderer unavailable")

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func allowGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// frameSize reads ?w=&h=, falling back to the view's default for either
// one that is absent.
func frameSize(r *http.Request, view *View) (int, int, error) {
	w, h := view.Size()
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("w")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxFrameWidth {
			return 0, 0, fmt.Errorf("w must be an integer in [1,%d]", maxFrameWidth)
		}
		w = v
	}
	if s := strings.TrimSpace(q.Get("h")); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxFrameHeight {
			return 0, 0, fmt.Errorf("h must be an integer in [1,%d]", maxFrameHeight)
		}
		h = v
	}
	return w, h, nil
}

// Handler builds the ground-station routes. view, samples, logs and flights
// are optional; their routes are absent when nil.
func Handler(status *Status, view *View, samples *SampleBroadcaster, settings SettingsStore, logs *LogBuffer, flights FlightStore) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allowGET(w, r) {
			return
		}
		writeJSON(w, status.Snapshot(time.Now().UTC()))
	})

	if view != nil {
		mux.HandleFunc("/api/compass", func(w http.ResponseWriter, r *http.Request) {
			if !allowGET(w, r) {
				return
			}
			fw, fh, err := frameSize(r, view)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			writeJSON(w, view.Frame(fw, fh))
		})

		mux.HandleFunc("/overlay.png", func(w http.ResponseWriter, r *http.Request) {
			if !allowGET(w, r) {
				return
			}
			fw, fh, err := frameSize(r, view)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			var buf bytes.Buffer
			if err := view.WritePNG(&buf, fw, fh); err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, errNoRenderer) {
					code = http.StatusNotImplemented
				}
				http.Error(w, err.Error(), code)
				return
			}
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("Cache-Control", "no-store")
			_, _ = w.Write(buf.Bytes())
		})
	}

	if samples != nil {
		mux.Handle("/api/telemetry/stream", streamHandler(samples))
	}

	mux.Handle("/api/settings", settings.Handler())

	if logs != nil {
		mux.Handle("/api/logs", logs.Handler())
	}

	if flights != nil {
		mux.HandleFunc("/api/flights", flightsHandler(flights))
		mux.HandleFunc("/api/flights/{id}/samples", flightSamplesHandler(flights))
	}

	mux.Handle("/api/about", AboutHandler())

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allowGET(w, r) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>raspifpv</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>raspifpv</h1>")
		if view != nil {
			_, _ = fmt.Fprintf(w, "<p><img src=\"/overlay.png\" style=\"background:#446\"></p>")
		}
		_, _ = fmt.Fprintf(w, "<pre>group=%s\nreceived=%s\ndropped=%s\nlast_rx_utc=%s</pre>",
			snap.Group, snap.ReceivedHuman, snap.DroppedHuman, snap.Receiver.LastRxUTC,
		)
		_, _ = fmt.Fprintf(w, "<p>API: <a href=\"/api/status\">/api/status</a> <a href=\"/api/compass\">/api/compass</a> <a href=\"/api/logs?format=text\">/api/logs</a></p>")
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

// streamHandler serves one SSE event per received sample until the client
// goes away.
func streamHandler(samples *SampleBroadcaster) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !allowGET(w, r) {
			return
		}
		rc := http.NewResponseController(w)
		// The stream outlives the server's write timeout.
		_ = rc.SetWriteDeadline(time.Time{})

		id, ch := samples.Subscribe(32)
		defer samples.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		if err := rc.Flush(); err != nil {
			return
		}

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-keepalive.C:
				if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
					return
				}
			case ev, ok := <-ch:
				if !ok {
					return
				}
				b, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, b); err != nil {
					return
				}
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	})
}

func Serve(ctx context.Context, listenAddr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
		// Cancels open SSE streams on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
