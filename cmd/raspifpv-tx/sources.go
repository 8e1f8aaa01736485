package main

import (
	"context"
	"fmt"
	"log"

	"raspifpv/internal/config"
	"raspifpv/internal/gps"
	"raspifpv/internal/sensors/adc"
	"raspifpv/internal/sim"
	"raspifpv/internal/telemetry"
)

// buildSources picks the sample sources for the live publisher: a simulated
// flight or scenario when sim.enable is set, otherwise the ADC for power and
// RSSI plus GPS for position. The returned func releases them.
func buildSources(ctx context.Context, cfg config.Config) (telemetry.Sources, func(), error) {
	if cfg.Sim.Enable {
		return simSources(cfg.Sim)
	}

	var srcs telemetry.Sources
	var closers []func()

	a := adc.New(adc.Config{
		Bus:            cfg.Telemetry.SPIBus,
		Device:         cfg.Telemetry.SPIDevice,
		VoltageChannel: cfg.Telemetry.VoltageADCChannel,
		VoltageMax:     cfg.Telemetry.VoltageSensorMax,
		CurrentChannel: cfg.Telemetry.CurrentADCChannel,
		CurrentMax:     cfg.Telemetry.CurrentSensorMax,
		RSSIChannel:    cfg.Telemetry.RSSIADCChannel,
		RSSIMin:        cfg.Telemetry.RSSISensorMin,
		RSSIMax:        cfg.Telemetry.RSSISensorMax,
	})
	srcs.Power = a
	srcs.Signal = a
	closers = append(closers, func() { _ = a.Close() })

	if cfg.GPS.Enable {
		svc := gps.New(gps.Config{
			Enable:     cfg.GPS.Enable,
			Source:     cfg.GPS.Source,
			GPSDAddr:   cfg.GPS.GPSDAddr,
			Device:     cfg.GPS.Device,
			Baud:       cfg.GPS.Baud,
			StaleAfter: cfg.GPS.StaleAfter,
		})
		if err := svc.Start(ctx); err != nil {
			// Keep sending power and RSSI without a position.
			log.Printf("gps init failed: %v", err)
		}
		srcs.Position = svc
		closers = append(closers, svc.Close)
	}

	return srcs, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

func simSources(c config.SimConfig) (telemetry.Sources, func(), error) {
	if c.Script != "" {
		script, err := sim.LoadScenarioScript(c.Script)
		if err != nil {
			return telemetry.Sources{}, nil, fmt.Errorf("sim script: %w", err)
		}
		scn, err := sim.NewScenario(script, c.Loop)
		if err != nil {
			return telemetry.Sources{}, nil, fmt.Errorf("sim script %s: %w", c.Script, err)
		}
		log.Printf("sim scenario path=%s duration=%s loop=%v", c.Script, scn.Duration(), c.Loop)
		return telemetry.Sources{Power: scn, Signal: scn, Position: scn}, func() {}, nil
	}

	f := sim.NewFlight(sim.FlightConfig{
		HomeLatDeg: c.HomeLatDeg,
		HomeLonDeg: c.HomeLonDeg,
		AltM:       c.AltM,
		RadiusM:    c.RadiusM,
		Period:     c.Period,
		Voltage:    c.Voltage,
		Current:    c.Current,
		RSSI:       c.RSSI,
	})
	log.Printf("sim flight home=%.5f,%.5f radius_m=%g period=%s", c.HomeLatDeg, c.HomeLonDeg, c.RadiusM, c.Period)
	return telemetry.Sources{Power: f, Signal: f, Position: f}, func() {}, nil
}
