package portal

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const idleQuiet = 500 * time.Millisecond

// networkTracker counts in-flight requests of one tab so waits can block
// until the page goes quiet.
type networkTracker struct {
	mu       sync.Mutex
	inflight map[network.RequestID]struct{}
	lastSeen time.Time
}

func newNetworkTracker() *networkTracker {
	return &networkTracker{
		inflight: make(map[network.RequestID]struct{}),
		lastSeen: time.Now(),
	}
}

// listen must be called with the tab context before network.Enable runs.
func (n *networkTracker) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			n.started(e.RequestID)
		case *network.EventLoadingFinished:
			n.finished(e.RequestID)
		case *network.EventLoadingFailed:
			n.finished(e.RequestID)
		}
	})
}

func (n *networkTracker) started(id network.RequestID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.inflight[id] = struct{}{}
	n.lastSeen = time.Now()
}

func (n *networkTracker) finished(id network.RequestID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.inflight, id)
	n.lastSeen = time.Now()
}

func (n *networkTracker) idleFor(now time.Time) time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.inflight) > 0 {
		return 0
	}
	return now.Sub(n.lastSeen)
}

// waitIdle blocks until no request has been in flight for idleQuiet or ctx
// is done.
func (n *networkTracker) waitIdle(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n.idleFor(time.Now()) >= idleQuiet {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
