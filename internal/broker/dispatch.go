package broker

import (
	"context"
	"time"
)

// Poll returns the next queued command, waiting up to wait for one to be
// submitted. A wait <= 0 uses the configured default.
//
// ok is false with a nil error when the wait elapses with nothing to hand
// out; that is a normal outcome. If ctx ends first Poll returns ctx.Err() and
// has claimed nothing.
func (b *Broker) Poll(ctx context.Context, wait time.Duration) (cmd Command, ok bool, err error) {
	if wait <= 0 {
		wait = b.cfg.PollWait
	}

	expired := make(chan struct{})
	deadline := b.clock.AfterFunc(wait, func() { close(expired) })
	defer deadline.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return Command{}, false, err
		}

		// Register before claiming: a submission that lands between a failed
		// claim and the select below still closes this generation.
		signal, release := b.wake.Register()
		if cmd, ok := b.ClaimNext(); ok {
			release()
			return cmd, true, nil
		}

		select {
		case <-signal:
			release()
		case <-expired:
			release()
			return Command{}, false, nil
		case <-ctx.Done():
			release()
			return Command{}, false, ctx.Err()
		}
	}
}
