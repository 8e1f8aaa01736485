// Package led blinks an activity LED on a GPIO line each time telemetry is
// sent.
package led

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

const DefaultPulse = 20 * time.Millisecond

type Config struct {
	// Chip is a gpiochip name or path; other chips are tried when the line
	// is not found on it.
	Chip string
	// GPIO is the BCM pin number.
	GPIO  int
	Pulse time.Duration
}

type outputLine interface {
	SetValue(v int) error
	Close() error
}

type LED struct {
	cfg  Config
	open func(chip string, gpio int) (outputLine, error)

	pulses chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	line   outputLine
}

func New(cfg Config) *LED {
	if cfg.Pulse <= 0 {
		cfg.Pulse = DefaultPulse
	}
	return &LED{
		cfg:    cfg,
		open:   openGPIOFn,
		pulses: make(chan struct{}, 1),
	}
}

// Start requests the GPIO line as an output and starts the blink loop. On
// error the LED stays inert and Pulse is a no-op.
func (l *LED) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return nil
	}

	line, err := l.open(l.cfg.Chip, l.cfg.GPIO)
	if err != nil {
		return fmt.Errorf("led gpio%d: %w", l.cfg.GPIO, err)
	}
	l.line = line

	ctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.loop(ctx, line)
	}()
	log.Printf("led started gpio=%d pulse=%s", l.cfg.GPIO, l.cfg.Pulse)
	return nil
}

func (l *LED) loop(ctx context.Context, line outputLine) {
	var loggedErr bool
	set := func(v int) {
		if err := line.SetValue(v); err != nil && !loggedErr {
			loggedErr = true
			log.Printf("led set failed gpio=%d: %v", l.cfg.GPIO, err)
		}
	}
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	lit := false
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			set(0)
			return
		case <-l.pulses:
			if !lit {
				set(1)
				lit = true
			}
			timer.Stop()
			select {
			case <-timer.C:
			default:
			}
			timer.Reset(l.cfg.Pulse)
		case <-timer.C:
			set(0)
			lit = false
		}
	}
}

// Pulse lights the LED for the configured duration. It never blocks;
// pulses arriving while lit extend the current one.
func (l *LED) Pulse() {
	if l == nil {
		return
	}
	select {
	case l.pulses <- struct{}{}:
	default:
	}
}

// OnTick has the telemetry.PublisherOptions.OnTick signature.
func (l *LED) OnTick(sent int) {
	if sent > 0 {
		l.Pulse()
	}
}

func (l *LED) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	cancel := l.cancel
	line := l.line
	l.cancel = nil
	l.line = nil
	l.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	l.wg.Wait()
	if line != nil {
		return line.Close()
	}
	return nil
}
