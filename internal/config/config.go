// Package config loads the YAML configuration shared by the transmitter and
// the receiver. Each binary reads only the sections it uses.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "/etc/raspifpv.yaml"

type Config struct {
	Networking NetworkingConfig `yaml:"networking"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	GPS        GPSConfig        `yaml:"gps"`
	Sim        SimConfig        `yaml:"sim"`
	Record     RecordConfig     `yaml:"record"`
	Replay     ReplayConfig     `yaml:"replay"`
	FlightLog  FlightLogConfig  `yaml:"flightlog"`
	Web        WebConfig        `yaml:"web"`
	LED        LEDConfig        `yaml:"led"`
	Log        LogConfig        `yaml:"log"`
}

type NetworkingConfig struct {
	MulticastAddress string `yaml:"multicast_address"`
	TelemetryPort    int    `yaml:"telemetry_port"`
	// VideoPort is consumed by the external video pipeline only.
	VideoPort int `yaml:"video_port"`
	// Interface selects the NIC used to join the group. Empty means the
	// system default.
	Interface string `yaml:"interface"`
	TTL       int    `yaml:"ttl"`
}

type TelemetryConfig struct {
	Interval time.Duration `yaml:"interval"`

	SPIBus    int `yaml:"spi_bus"`
	SPIDevice int `yaml:"spi_device"`

	VoltageADCChannel int     `yaml:"voltage_adc_channel"`
	VoltageSensorMax  float64 `yaml:"voltage_sensor_max"`
	CurrentADCChannel int     `yaml:"current_adc_channel"`
	CurrentSensorMax  float64 `yaml:"current_sensor_max"`
	RSSIADCChannel    int     `yaml:"rssi_adc_channel"`
	RSSISensorMin     float64 `yaml:"rssi_sensor_min"`
	RSSISensorMax     float64 `yaml:"rssi_sensor_max"`

	ShowAltitude bool `yaml:"show_altitude"`
}

type GPSConfig struct {
	Enable     bool          `yaml:"enable"`
	Source     string        `yaml:"source"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	GPSDAddr   string        `yaml:"gpsd_addr"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type SimConfig struct {
	Enable     bool          `yaml:"enable"`
	HomeLatDeg float64       `yaml:"home_lat_deg"`
	HomeLonDeg float64       `yaml:"home_lon_deg"`
	AltM       float64       `yaml:"alt_m"`
	RadiusM    float64       `yaml:"radius_m"`
	Period     time.Duration `yaml:"period"`
	Voltage    float64       `yaml:"voltage"`
	Current    float64       `yaml:"current"`
	RSSI       float64       `yaml:"rssi"`
	// Script, when set, plays a keyframed scenario instead of the orbit.
	Script string `yaml:"script"`
	Loop   bool   `yaml:"loop"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type ReplayConfig struct {
	Enable bool    `yaml:"enable"`
	Path   string  `yaml:"path"`
	Speed  float64 `yaml:"speed"`
	Loop   bool    `yaml:"loop"`
}

type FlightLogConfig struct {
	Enable   bool   `yaml:"enable"`
	Path     string `yaml:"path"`
	QueueLen int    `yaml:"queue_len"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type LEDConfig struct {
	Enable bool   `yaml:"enable"`
	Chip   string `yaml:"chip"`
	GPIO   int    `yaml:"gpio"`
	// Pulse is how long the LED stays lit after a send.
	Pulse time.Duration `yaml:"pulse"`
}

type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// defaults holds the values whose zero value is meaningful, so they are set
// before the file is decoded over them.
func defaults() Config {
	return Config{
		Telemetry: TelemetryConfig{
			VoltageADCChannel: 0,
			CurrentADCChannel: 1,
			RSSIADCChannel:    2,
			RSSISensorMin:     -20,
			RSSISensorMax:     0,
		},
		Web: WebConfig{Listen: ":8080"},
	}
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := defaults()
	_ = DefaultAndValidate(&cfg)
	return cfg
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := defaults()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load, except that a missing file at DefaultPath
// yields Default().
func LoadOrDefault(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil && path == DefaultPath && errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// DefaultAndValidate fills zero values with defaults and checks ranges.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	n := &cfg.Networking
	if n.MulticastAddress == "" {
		n.MulticastAddress = "224.1.1.43"
	}
	if ip := net.ParseIP(n.MulticastAddress); ip == nil || ip.To4() == nil {
		return fmt.Errorf("networking.multicast_address must be an IPv4 address")
	} else if !ip.IsMulticast() {
		return fmt.Errorf("networking.multicast_address must be a multicast group")
	}
	if n.TelemetryPort == 0 {
		n.TelemetryPort = 9001
	}
	if n.VideoPort == 0 {
		n.VideoPort = 9000
	}
	if err := checkPort("networking.telemetry_port", n.TelemetryPort); err != nil {
		return err
	}
	if err := checkPort("networking.video_port", n.VideoPort); err != nil {
		return err
	}
	if n.TTL == 0 {
		n.TTL = 1
	}
	if n.TTL < 0 || n.TTL > 255 {
		return fmt.Errorf("networking.ttl must be in [1,255]")
	}

	t := &cfg.Telemetry
	if t.Interval == 0 {
		t.Interval = 100 * time.Millisecond
	}
	if t.Interval < 0 {
		return fmt.Errorf("telemetry.interval must be > 0")
	}
	if t.VoltageSensorMax == 0 {
		t.VoltageSensorMax = 51.8
	}
	if t.CurrentSensorMax == 0 {
		t.CurrentSensorMax = 89.4
	}
	for _, ch := range []struct {
		key string
		v   int
	}{
		{"telemetry.voltage_adc_channel", t.VoltageADCChannel},
		{"telemetry.current_adc_channel", t.CurrentADCChannel},
		{"telemetry.rssi_adc_channel", t.RSSIADCChannel},
	} {
		if ch.v < 0 || ch.v > 7 {
			return fmt.Errorf("%s must be in [0,7]", ch.key)
		}
	}
	if t.VoltageSensorMax < 0 {
		return fmt.Errorf("telemetry.voltage_sensor_max must be > 0")
	}
	if t.CurrentSensorMax < 0 {
		return fmt.Errorf("telemetry.current_sensor_max must be > 0")
	}
	if t.RSSISensorMin >= t.RSSISensorMax {
		return fmt.Errorf("telemetry.rssi_sensor_min must be < telemetry.rssi_sensor_max")
	}

	g := &cfg.GPS
	if g.Source == "" {
		g.Source = "nmea"
	}
	if g.Source != "nmea" && g.Source != "gpsd" {
		return fmt.Errorf("gps.source must be 'nmea' or 'gpsd'")
	}
	if g.Baud == 0 {
		g.Baud = 9600
	}
	if g.GPSDAddr == "" {
		g.GPSDAddr = "127.0.0.1:2947"
	}
	if g.StaleAfter <= 0 {
		g.StaleAfter = 5 * time.Second
	}

	s := &cfg.Sim
	if s.HomeLatDeg == 0 && s.HomeLonDeg == 0 {
		s.HomeLatDeg, s.HomeLonDeg = 47.3977, 8.5456
	}
	if s.HomeLatDeg < -90 || s.HomeLatDeg > 90 || s.HomeLonDeg < -180 || s.HomeLonDeg > 180 {
		return fmt.Errorf("sim.home_lat_deg/home_lon_deg out of range")
	}
	if s.Period < 0 {
		return fmt.Errorf("sim.period must be > 0")
	}
	if s.Enable && cfg.GPS.Enable {
		return fmt.Errorf("sim.enable and gps.enable cannot both be true")
	}

	if cfg.Record.Enable && cfg.Record.Path == "" {
		return fmt.Errorf("record.path is required when record.enable is true")
	}
	if cfg.Replay.Enable {
		if cfg.Replay.Path == "" {
			return fmt.Errorf("replay.path is required when replay.enable is true")
		}
		if cfg.Replay.Speed == 0 {
			cfg.Replay.Speed = 1
		}
		if cfg.Replay.Speed < 0 {
			return fmt.Errorf("replay.speed must be > 0")
		}
	}

	if cfg.FlightLog.Enable && cfg.FlightLog.Path == "" {
		return fmt.Errorf("flightlog.path is required when flightlog.enable is true")
	}

	w := &cfg.Web
	if w.Width == 0 {
		w.Width = 1280
	}
	if w.Height == 0 {
		w.Height = 720
	}
	if w.Width < 0 || w.Height < 0 || w.Width > 7680 || w.Height > 4320 {
		return fmt.Errorf("web.width/height must be in [1,7680]x[1,4320]")
	}

	if cfg.LED.Chip == "" {
		cfg.LED.Chip = "gpiochip0"
	}
	if cfg.LED.Pulse <= 0 {
		cfg.LED.Pulse = 20 * time.Millisecond
	}
	if cfg.LED.Enable && cfg.LED.GPIO <= 0 {
		return fmt.Errorf("led.gpio is required when led.enable is true")
	}

	l := &cfg.Log
	if l.MaxSizeMB == 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = 28
	}
	return nil
}

func checkPort(key string, p int) error {
	if p < 1 || p > 65535 {
		return fmt.Errorf("%s must be in [1,65535]", key)
	}
	return nil
}

// Save validates cfg and writes it to path atomically.
func Save(path string, cfg Config) error {
	if err := DefaultAndValidate(&cfg); err != nil {
		return err
	}
	b, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	// Temp file in the same directory so the rename is atomic.
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}
