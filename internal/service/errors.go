package service

import "errors"

// ErrOutOfOrder means an event arrived ahead of the order's stored version and
// must be deferred until the gap is filled. Retryable.
var ErrOutOfOrder = errors.New("event ahead of order version")

type transientError struct{ err error }

func (e *transientError) Error() string { return "transient: " + e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err so consumers redeliver instead of dead-lettering.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err should be retried (broker redelivery or
// blocking backoff) rather than acknowledged or dead-lettered.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
