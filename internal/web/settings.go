package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"

	"raspifpv/internal/config"
)

const maxSettingsBody = 1 << 20

// SettingsPayload is the runtime-adjustable subset of the receiver config.
type SettingsPayload struct {
	ShowAltitude bool `json:"show_altitude"`
	Width        int  `json:"width"`
	Height       int  `json:"height"`
}

// SettingsPayloadIn is the POST form. Every key is required.
type SettingsPayloadIn struct {
	ShowAltitude *bool `json:"show_altitude"`
	Width        *int  `json:"width"`
	Height       *int  `json:"height"`
}

var settingsKeys = []string{"show_altitude", "width", "height"}

// checkStrictObject walks body as a single JSON object whose keys are exactly
// keys, each once and none null.
func checkStrictObject(body []byte, keys []string) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	if tok, err := dec.Token(); err != nil {
		return err
	} else if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("expected object")
	}

	seen := make(map[string]bool, len(keys))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		switch {
		case !slices.Contains(keys, key):
			return fmt.Errorf("unknown key %q", key)
		case seen[key]:
			return fmt.Errorf("duplicate key %q", key)
		}
		seen[key] = true

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("%q cannot be null", key)
		}
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errors.New("trailing data")
	}
	for _, k := range keys {
		if !seen[k] {
			return fmt.Errorf("missing required key %q", k)
		}
	}
	return nil
}

func decodeSettingsPayloadIn(body []byte) (SettingsPayloadIn, error) {
	var p SettingsPayloadIn
	if err := checkStrictObject(body, settingsKeys); err != nil {
		return p, fmt.Errorf("invalid json: %w", err)
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return p, fmt.Errorf("invalid json: %w", err)
	}
	return p, nil
}

func settingsFromConfig(cfg config.Config) SettingsPayload {
	return SettingsPayload{
		ShowAltitude: cfg.Telemetry.ShowAltitude,
		Width:        cfg.Web.Width,
		Height:       cfg.Web.Height,
	}
}

func applySettingsPayload(cfg *config.Config, p SettingsPayloadIn) error {
	if p.ShowAltitude == nil || p.Width == nil || p.Height == nil {
		return errors.New("show_altitude, width and height are required")
	}
	if *p.Width < 1 || *p.Width > maxFrameWidth || *p.Height < 1 || *p.Height > maxFrameHeight {
		return fmt.Errorf("width/height must be in [1,%d]x[1,%d]", maxFrameWidth, maxFrameHeight)
	}
	cfg.Telemetry.ShowAltitude = *p.ShowAltitude
	cfg.Web.Width = *p.Width
	cfg.Web.Height = *p.Height
	return nil
}

// SettingsStore serves /api/settings backed by the config file at ConfigPath.
type SettingsStore struct {
	ConfigPath string
	// Apply makes an accepted config live. It runs before the file is
	// written; an error rejects the request and leaves the file alone.
	Apply func(cfg config.Config) error
}

func (s SettingsStore) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/settings", func(w http.ResponseWriter, r *http.Request) {
		if strings.TrimSpace(s.ConfigPath) == "" {
			http.Error(w, "settings not available (no config path)", http.StatusNotImplemented)
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.get(w)
		case http.MethodPost:
			s.post(w, r)
		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	return mux
}

func (s SettingsStore) get(w http.ResponseWriter) {
	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, settingsFromConfig(cfg))
}

func (s SettingsStore) post(w http.ResponseWriter, r *http.Request) {
	if ct := strings.TrimSpace(r.Header.Get("Content-Type")); ct != "application/json" {
		http.Error(w, "content-type must be application/json", http.StatusUnsupportedMediaType)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		http.Error(w, fmt.Sprintf("read failed: %v", err), http.StatusBadRequest)
		return
	}
	p, err := decodeSettingsPayloadIn(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	prev, err := config.Load(s.ConfigPath)
	if err != nil {
		http.Error(w, fmt.Sprintf("load failed: %v", err), http.StatusInternalServerError)
		return
	}
	next := prev
	if err := applySettingsPayload(&next, p); err != nil {
		http.Error(w, fmt.Sprintf("invalid settings: %v", err), http.StatusBadRequest)
		return
	}
	if err := config.DefaultAndValidate(&next); err != nil {
		http.Error(w, fmt.Sprintf("invalid config: %v", err), http.StatusBadRequest)
		return
	}
	if s.Apply != nil {
		if err := s.Apply(next); err != nil {
			http.Error(w, fmt.Sprintf("apply failed: %v", err), http.StatusBadRequest)
			return
		}
	}
	if err := config.Save(s.ConfigPath, next); err != nil {
		if s.Apply != nil {
			_ = s.Apply(prev)
		}
		http.Error(w, fmt.Sprintf("save failed: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, settingsFromConfig(next))
}
