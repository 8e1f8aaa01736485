// Package gps supplies the vehicle position for telemetry.
//
// Two ingest paths are supported:
//   - NMEA RMC+GGA read directly from a USB/UART receiver
//   - gpsd TPV/SKY JSON reports over TCP
//
// Both feed the same Snapshot, and Position turns a fresh fix into a
// wire.Position with altitude in metres and bearing equal to course over
// ground.
package gps
