package account

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sethvargo/go-retry"
)

// probeInterval is the delay between reachability attempts.
const probeInterval = 500 * time.Millisecond

// reachabilityProbe polls an endpoint of the selected environment until it
// answers, the probe is cancelled, or its context ends. It is the only
// cancellable operation in the login flow.
type reachabilityProbe struct {
	done   chan error
	cancel context.CancelFunc
}

// startReachabilityProbe begins probing url in the background. The probe
// counts any HTTP response as reachable; only transport errors mean
// offline.
func startReachabilityProbe(ctx context.Context, client *http.Client, url string) *reachabilityProbe {
	ctx, cancel := context.WithCancel(ctx)
	probe := &reachabilityProbe{
		done:   make(chan error, 1),
		cancel: cancel,
	}

	go func() {
		backoff := retry.NewConstant(probeInterval)
		probe.done <- retry.Do(ctx, backoff, func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return fmt.Errorf("building probe request: %w", err)
			}

			res, err := client.Do(req)
			if err != nil {
				return retry.RetryableError(err)
			}
			res.Body.Close()

			return nil
		})
	}()

	return probe
}

// Cancel stops probing. Safe to call after the probe settled.
func (p *reachabilityProbe) Cancel() {
	p.cancel()
}

// waitWithTimeout waits for the probe to settle, giving up after the given
// advisory timeout. It returns true when the endpoint answered, false when
// the timeout elapsed first.
func (p *reachabilityProbe) waitWithTimeout(ctx context.Context, clk clock.Clock, timeout time.Duration) (bool, error) {
	timer := clk.Timer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-p.done:
		return err == nil, nil
	case <-timer.C:
		return false, nil
	}
}

// wait blocks until the probe settles.
func (p *reachabilityProbe) wait(ctx context.Context) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-p.done:
		return err == nil, nil
	}
}
