package ledger

import (
	"context"
	"sync"

	"fincon/internal/core"
)

// Subscribe streams snapshots of the collection: one immediately, then one
// after every change. The channel holds at most one undelivered snapshot;
// a newer one replaces it. For an unauthenticated Store nothing is ever
// sent. The channel closes after the returned stop is called or ctx ends;
// stop may be called any number of times.
func (s *Store) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	out := make(chan Snapshot, 1)
	done := make(chan struct{})
	var once sync.Once
	stop := func() { once.Do(func() { close(done) }) }

	if !s.id.Authenticated() {
		go func() {
			defer close(out)
			select {
			case <-ctx.Done():
			case <-done:
			}
		}()
		return out, stop
	}

	signals, unlisten := s.ledger.hub.Listen(s.id.ID)
	go func() {
		defer close(out)
		defer unlisten()

		for {
			snap, err := s.Snapshot(ctx)
			switch {
			case err == nil:
				offer(out, snap)
			case ctx.Err() != nil:
				return
			default:
				s.ledger.logger.WarnContext(ctx, "Snapshot read failed, waiting for next change",
					"user_id", s.id.ID,
					"error", err)
			}

			select {
			case <-ctx.Done():
				return
			case <-done:
				// Nothing more is delivered once unsubscribed.
				select {
				case <-out:
				default:
				}
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
		}
	}()
	return out, stop
}

// offer puts snap in out, displacing an older undelivered snapshot.
// Only the producing goroutine sends on out.
func offer(out chan Snapshot, snap Snapshot) {
	for {
		select {
		case out <- snap:
			return
		default:
			select {
			case <-out:
			default:
			}
		}
	}
}

// Summary pairs a snapshot with its totals.
type Summary struct {
	Snapshot
	Totals core.Totals
}

// Summarize applies core.Aggregate to every snapshot from in. The output
// closes when in closes or ctx ends.
func Summarize(ctx context.Context, in <-chan Snapshot) <-chan Summary {
	out := make(chan Summary)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-in:
				if !ok {
					return
				}
				sum := Summary{Snapshot: snap, Totals: core.Aggregate(snap.Transactions)}
				select {
				case out <- sum:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
