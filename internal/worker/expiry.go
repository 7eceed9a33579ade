// Package worker runs the periodic maintenance jobs of the server.
package worker

import (
	"context"
	"log"
	"time"
)

// DefaultExpiryInterval is how often stale reservations are swept.
const DefaultExpiryInterval = 5 * time.Minute

// Expirer moves ACTIVE reservations of departed trips to EXPIRED.
type Expirer interface {
	ExpireStaleReservations(ctx context.Context, cutoff time.Time) (int, error)
}

// ExpiryWorker calls the expirer on a fixed interval.
type ExpiryWorker struct {
	expirer  Expirer
	interval time.Duration
	now      func() time.Time
}

func NewExpiryWorker(e Expirer, interval time.Duration) *ExpiryWorker {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	return &ExpiryWorker{expirer: e, interval: interval, now: time.Now}
}

// Run sweeps once right away and then on every tick until ctx ends. A
// failed sweep is logged and retried on the next tick.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	log.Printf("expiry-worker: started (interval=%s)", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			log.Printf("expiry-worker: stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.expirer.ExpireStaleReservations(ctx, w.now())
	switch {
	case err != nil && ctx.Err() == nil:
		log.Printf("expiry-worker: sweep failed after %d expirations: %v", n, err)
	case n > 0:
		log.Printf("expiry-worker: expired %d reservations", n)
	}
}
