package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// DefaultTripThreshold is the number of consecutive upstream failures that
// opens a host's breaker.
const DefaultTripThreshold = 5

// CircuitBreakerFetcher wraps a FetcherInterface with one circuit breaker per host.
//
// Only upstream failures count towards tripping a breaker. A missing file
// (ErrNotFound, ErrMethodNotAllowed or another 4xx) is an answer from a healthy
// host, so a registry full of stale entries does not take the host offline.
type CircuitBreakerFetcher struct {
	fetcher   FetcherInterface
	threshold int64
	breakers  map[string]*circuit.Breaker
	mu        sync.RWMutex
}

// NewCircuitBreakerFetcher creates a circuit breaker wrapper around f.
func NewCircuitBreakerFetcher(f FetcherInterface) *CircuitBreakerFetcher {
	return NewCircuitBreakerFetcherWithThreshold(f, DefaultTripThreshold)
}

// NewCircuitBreakerFetcherWithThreshold is NewCircuitBreakerFetcher with a
// custom consecutive-failure threshold.
func NewCircuitBreakerFetcherWithThreshold(f FetcherInterface, threshold int64) *CircuitBreakerFetcher {
	if threshold <= 0 {
		threshold = DefaultTripThreshold
	}
	return &CircuitBreakerFetcher{
		fetcher:   f,
		threshold: threshold,
		breakers:  make(map[string]*circuit.Breaker),
	}
}

func (cbf *CircuitBreakerFetcher) getBreaker(host string) *circuit.Breaker {
	cbf.mu.RLock()
	breaker, exists := cbf.breakers[host]
	cbf.mu.RUnlock()

	if exists {
		return breaker
	}

	cbf.mu.Lock()
	defer cbf.mu.Unlock()

	if breaker, exists := cbf.breakers[host]; exists {
		return breaker
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 30 * time.Second
	expBackoff.MaxInterval = 5 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	breaker = circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ThresholdTripFunc(cbf.threshold),
	})
	cbf.breakers[host] = breaker
	return breaker
}

// Fetch wraps the underlying Fetch with the breaker for the URL's host.
func (cbf *CircuitBreakerFetcher) Fetch(ctx context.Context, fetchURL string) (*Content, error) {
	host := extractHost(fetchURL)
	breaker := cbf.getBreaker(host)

	if !breaker.Ready() {
		return nil, fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var content *Content
	var answer error
	err := breaker.Call(func() error {
		var fetchErr error
		content, fetchErr = cbf.fetcher.Fetch(ctx, fetchURL)
		if fetchErr != nil && !countsAsFailure(fetchErr) {
			answer = fetchErr
			return nil
		}
		return fetchErr
	}, 0)

	if err != nil {
		return nil, err
	}
	if answer != nil {
		return nil, answer
	}
	return content, nil
}

// Head wraps the underlying Head with the breaker for the URL's host.
func (cbf *CircuitBreakerFetcher) Head(ctx context.Context, headURL string) (size int64, contentType string, err error) {
	host := extractHost(headURL)
	breaker := cbf.getBreaker(host)

	if !breaker.Ready() {
		return 0, "", fmt.Errorf("circuit breaker open for %s: %w", host, ErrUpstreamDown)
	}

	var answer error
	err = breaker.Call(func() error {
		var headErr error
		size, contentType, headErr = cbf.fetcher.Head(ctx, headURL)
		if headErr != nil && !countsAsFailure(headErr) {
			answer = headErr
			return nil
		}
		return headErr
	}, 0)

	if err != nil {
		return 0, "", err
	}
	if answer != nil {
		return 0, "", answer
	}
	return size, contentType, nil
}

// countsAsFailure reports whether err says something about the host's health
// rather than about the requested file.
func countsAsFailure(err error) bool {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrMethodNotAllowed) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
		return false
	}
	return true
}

// extractHost returns the breaker key for a URL.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		if len(rawURL) > 50 {
			return rawURL[:50]
		}
		return rawURL
	}
	return parsed.Host
}

// BreakerStates returns "open" or "closed" for every host seen so far.
func (cbf *CircuitBreakerFetcher) BreakerStates() map[string]string {
	cbf.mu.RLock()
	defer cbf.mu.RUnlock()

	states := make(map[string]string, len(cbf.breakers))
	for host, breaker := range cbf.breakers {
		if breaker.Tripped() {
			states[host] = "open"
		} else {
			states[host] = "closed"
		}
	}
	return states
}
