package messaging

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// BulkResult summarises a bulk send.
type BulkResult struct {
	Sent   int
	Failed int
	// Errors holds up to MaxBulkErrors failure messages.
	Errors []string
}

// MaxBulkErrors bounds the errors kept in a BulkResult.
const MaxBulkErrors = 20

// Bulk runs sends with bounded concurrency and a send rate.
type Bulk struct {
	concurrency int
	limiter     *rate.Limiter
}

// NewBulk allows concurrency parallel sends at perSecond overall.
func NewBulk(concurrency int, perSecond float64) *Bulk {
	if concurrency <= 0 {
		concurrency = 1
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &Bulk{concurrency: concurrency, limiter: rate.NewLimiter(limit, concurrency)}
}

// Run calls send for each index in [0, n). A failing send is counted and the
// loop continues. Cancelling ctx stops dispatching; unsent items are counted
// as failed.
func (b *Bulk) Run(ctx context.Context, n int, send func(ctx context.Context, i int) error) BulkResult {
	var (
		sent, failed int64
		mu           sync.Mutex
		errs         []string
	)
	record := func(err error) {
		atomic.AddInt64(&failed, 1)
		mu.Lock()
		if len(errs) < MaxBulkErrors {
			errs = append(errs, err.Error())
		}
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	for i := 0; i < n; i++ {
		if err := b.limiter.Wait(ctx); err != nil {
			atomic.AddInt64(&failed, int64(n-i))
			mu.Lock()
			errs = append(errs, err.Error())
			mu.Unlock()
			break
		}
		i := i
		g.Go(func() error {
			if err := send(ctx, i); err != nil {
				record(err)
				return nil
			}
			atomic.AddInt64(&sent, 1)
			return nil
		})
	}
	_ = g.Wait()

	return BulkResult{Sent: int(sent), Failed: int(failed), Errors: errs}
}
