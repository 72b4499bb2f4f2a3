// Package httpx holds the request loop shared by the upstream clients: a
// token bucket in front of every attempt and exponential backoff on
// transient failures.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	DefaultBackoffBase = 5 * time.Second
	DefaultAttempts    = 3
)

// ErrTransient marks failures worth retrying on a later cycle.
var ErrTransient = errors.New("transient upstream failure")

// StatusError is a non-2xx response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Transient reports 429 and 5xx statuses.
func (e *StatusError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

func (e *StatusError) Unwrap() error {
	if e.Transient() {
		return ErrTransient
	}
	return nil
}

// Policy configures retries. The zero value uses the defaults.
type Policy struct {
	Base     time.Duration
	Attempts int
}

func (p Policy) backoff() retry.Backoff {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoffBase
	}
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	return retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(base))
}

// Requester sends requests through a limiter with retries.
type Requester struct {
	Client  *http.Client
	Limiter *rate.Limiter
	Policy  Policy
}

// Do builds and sends a request, retrying transient failures, and returns
// the body of the first 2xx response.
func (r *Requester) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}

	var body []byte
	err := retry.Do(ctx, r.Policy.backoff(), func(ctx context.Context) error {
		if r.Limiter != nil {
			if err := r.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		req, err := build(ctx)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrTransient, err))
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("%w: read body: %v", ErrTransient, err))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
			if statusErr.Transient() {
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}
		body = payload
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// NewLimiter returns a limiter allowing rps requests per second with a burst
// of one. A non-positive rps disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}
