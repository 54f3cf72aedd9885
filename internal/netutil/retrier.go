package netutil

import (
	"context"
	"errors"
	"time"

	"github.com/skycoin/skycoin/src/util/logging"
)

var log = logging.MustGetLogger("netutil")

// ErrThresholdReached is returned by Do once retries have gone on longer
// than the threshold.
var ErrThresholdReached = errors.New("threshold timeout has been reached")

// RetryFunc is an operation retried by a Retrier.
type RetryFunc func(ctx context.Context) error

// Retrier retries an operation with exponential backoff until it succeeds,
// returns a whitelisted error, or the threshold passes.
type Retrier struct {
	exponentialBackoff time.Duration
	exponentialFactor  uint32
	threshold          time.Duration
	errWhitelist       map[error]struct{}
	log                *logging.Logger
}

// NewRetrier creates a Retrier. The first retry waits exponentialBackoff and
// every further one waits factor times longer. threshold counts from the
// first failure.
func NewRetrier(exponentialBackoff, threshold time.Duration, factor uint32) *Retrier {
	if factor == 0 {
		factor = 1
	}
	return &Retrier{
		exponentialBackoff: exponentialBackoff,
		threshold:          threshold,
		exponentialFactor:  factor,
		errWhitelist:       make(map[error]struct{}),
		log:                log,
	}
}

// WithErrWhitelist makes Do return immediately on any of errors.
func (r *Retrier) WithErrWhitelist(errors ...error) *Retrier {
	m := make(map[error]struct{})
	for _, err := range errors {
		m[err] = struct{}{}
	}

	r.errWhitelist = m
	return r
}

// WithLogger sets the logger failed attempts are reported to.
func (r *Retrier) WithLogger(logger *logging.Logger) *Retrier {
	if logger != nil {
		r.log = logger
	}
	return r
}

// Do runs f until it succeeds. It gives up with ErrThresholdReached when
// the next attempt would start after the threshold, or with ctx.Err() when
// ctx is done.
func (r *Retrier) Do(ctx context.Context, f RetryFunc) error {
	currentBackoff := r.exponentialBackoff
	var deadline time.Time

	for {
		err := f(ctx)
		if err == nil {
			return nil
		}
		if r.isWhitelisted(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.log.WithError(err).Warn("Attempt failed, retrying")

		if deadline.IsZero() {
			deadline = time.Now().Add(r.threshold)
		}
		if time.Now().Add(currentBackoff).After(deadline) {
			return ErrThresholdReached
		}

		backoff := time.NewTimer(currentBackoff)
		select {
		case <-ctx.Done():
			backoff.Stop()
			return ctx.Err()
		case <-backoff.C:
		}
		currentBackoff *= time.Duration(r.exponentialFactor)
	}
}

func (r *Retrier) isWhitelisted(err error) bool {
	_, ok := r.errWhitelist[err]
	return ok
}
