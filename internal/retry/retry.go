// Package retry runs provider calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
)

// Policy bounds the attempts made for one call.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultPolicy is used by every adapter unless configured otherwise.
func DefaultPolicy() Policy {
	return Policy{
		MaxTries:        5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsed:      time.Minute,
	}
}

// Classifier reports whether err may succeed on another attempt.
type Classifier func(error) bool

// Do calls op until it succeeds, returns an error the classifier rejects, or
// the policy is exhausted. The last error is returned unchanged.
func Do[T any](ctx context.Context, p Policy, retryable Classifier, logger log.FieldLogger, op func() (T, error)) (T, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if retryable == nil {
		retryable = Transient
	}

	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithNotify(func(err error, wait time.Duration) {
			logger.WithError(err).Debugf("retrying in %s", wait)
		}),
	}
	if p.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(p.MaxTries))
	}
	if p.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(p.MaxElapsed))
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := op()
		if err != nil && !retryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, opts...)
}

// Transient retries network timeouts and nothing else. Context errors are
// never retried.
func Transient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// TransientStatus reports whether an HTTP status is worth retrying.
func TransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Unauthorized reports whether an HTTP status means the credentials are bad.
// A 403 is about one resource and is left to the caller.
func Unauthorized(code int) bool {
	return code == http.StatusUnauthorized
}
