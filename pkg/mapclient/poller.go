package mapclient

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/glog"
)

// growthBackoff tracks the largest tree size seen so far and how long to wait before the
// next poll. The delay resets to one second whenever the size grows, and doubles otherwise.
// It is not capped.
type growthBackoff struct {
	lastObservedSize int64
	delay            time.Duration
}

func newGrowthBackoff() growthBackoff {
	return growthBackoff{lastObservedSize: -1}
}

// observe records a fetched size and returns true if it is larger than any seen before.
// The delay doubles if it is not; callers call reset after a growth they keep polling on.
func (b *growthBackoff) observe(size int64) bool {
	if size > b.lastObservedSize {
		b.lastObservedSize = size
		return true
	}
	b.delay *= 2
	return false
}

func (b *growthBackoff) reset() {
	b.delay = time.Second
}

// SleepFunc suspends the caller for d, or returns an error if ctx is done first.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	case <-timer.C:
		return nil
	}
}

// SizeConvergencePoller waits until the map reflects at least a target number of mutations.
type SizeConvergencePoller struct {
	// Fetch returns the latest map tree head.
	Fetch func(ctx context.Context) (*MapTreeHead, error)
	// Sleep defaults to SleepContext.
	Sleep SleepFunc
}

// NewSizeConvergencePoller returns a poller fetching the head of m.
func NewSizeConvergencePoller(m *VerifiableMap) *SizeConvergencePoller {
	return &SizeConvergencePoller{
		Fetch: func(ctx context.Context) (*MapTreeHead, error) {
			return m.TreeHead(ctx, Head)
		},
		Sleep: SleepContext,
	}
}

// WaitForSize polls until a head of at least target is fetched, and returns it.
// There is no limit on the number of polls; the only ways out other than convergence are an
// error from Fetch, returned as is, or the cancellation of ctx, returned as ErrInterrupted.
func (p *SizeConvergencePoller) WaitForSize(ctx context.Context, target int64,
) (*MapTreeHead, error) {

	sleep := p.Sleep
	if sleep == nil {
		sleep = SleepContext
	}
	b := newGrowthBackoff()
	for {
		head, err := p.Fetch(ctx)
		if err != nil {
			return nil, err
		}
		if b.observe(head.TreeSize()) {
			if head.TreeSize() >= target {
				glog.Infof("map reached size %d (target %d)", head.TreeSize(), target)
				return head, nil
			}
			b.reset()
		}
		glog.V(1).Infof("map at size %d, waiting for %d, next poll in %s",
			b.lastObservedSize, target, b.delay)
		if err := sleep(ctx, b.delay); err != nil {
			return nil, err
		}
	}
}
