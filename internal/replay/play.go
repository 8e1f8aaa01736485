package replay

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Play calls send for each datagram, waiting the recorded gap between
// consecutive records divided by speed. START markers reset the origin, so
// the first datagram after one is sent without delay.
//
// With loop set Play repeats until ctx is done or send fails.
func Play(ctx context.Context, records []Record, speed float64, loop bool, sleeper Sleeper, send func(b []byte) error) error {
	if speed <= 0 {
		return fmt.Errorf("speed must be > 0")
	}
	if send == nil {
		return errors.New("send callback is nil")
	}
	if len(records) == 0 {
		return errors.New("no records")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}

	for {
		var origin, lastAt time.Duration
		haveLast := false
		for _, r := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if r.Datagram == nil {
				origin = r.At
				haveLast = false
				continue
			}

			at := max(r.At-origin, 0)
			if haveLast {
				if wait := time.Duration(float64(max(at-lastAt, 0)) / speed); wait > 0 {
					if err := sleeper.Sleep(ctx, wait); err != nil {
						return err
					}
				}
			}
			if err := send(r.Datagram); err != nil {
				return err
			}
			lastAt = at
			haveLast = true
		}
		if !loop {
			return nil
		}
	}
}
