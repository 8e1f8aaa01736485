package telemetry

import "raspifpv/internal/wire"

// PowerSource reports battery voltage and current. ok is false when there
// is nothing to send this tick.
type PowerSource interface {
	Power() (p wire.Power, ok bool)
}

type SignalSource interface {
	Signal() (s wire.Signal, ok bool)
}

type PositionSource interface {
	Position() (p wire.Position, ok bool)
}

// Sources are polled by the Publisher in field order. A nil source never has
// data.
type Sources struct {
	Power    PowerSource
	Signal   SignalSource
	Position PositionSource
}

// PowerFunc adapts a function to PowerSource.
type PowerFunc func() (wire.Power, bool)

func (f PowerFunc) Power() (wire.Power, bool) { return f() }

type SignalFunc func() (wire.Signal, bool)

func (f SignalFunc) Signal() (wire.Signal, bool) { return f() }

type PositionFunc func() (wire.Position, bool)

func (f PositionFunc) Position() (wire.Position, bool) { return f() }
