package hdscan

import (
	"errors"
	"fmt"
)

var (
	// ErrDerivation is returned when a key or address cannot be derived for an
	// index. It points to a configuration error and is never retried.
	ErrDerivation = errors.New("derivation failure")
	// ErrLookup is returned when the utxo lookup of a batch of addresses fails.
	ErrLookup = errors.New("utxo lookup failure")
	// ErrNoGapFound is returned when a scan reaches the max index without
	// finding a run of unused addresses long enough.
	ErrNoGapFound = errors.New("no gap of unused addresses found below max index")
	// ErrNotReady is returned by accessors before the first successful
	// initialization of a manager.
	ErrNotReady = errors.New("address space is not initialized")
	// ErrIndexOutOfRange ...
	ErrIndexOutOfRange = errors.New("index exceeds max index")
	// ErrInvalidScanConfig ...
	ErrInvalidScanConfig = errors.New(
		"scan config must have gap size > 0, batch size > gap size " +
			"and max index in the non-hardened range",
	)
	// ErrNullDeriver ...
	ErrNullDeriver = errors.New("key deriver must not be null")
	// ErrNullChain ...
	ErrNullChain = errors.New("chain must not be null")
	// ErrNullBasePath ...
	ErrNullBasePath = errors.New("base derivation path must not be null")
)

// wrappedError tags an error with one of the sentinels above while keeping the
// cause reachable through errors.Is and errors.As.
type wrappedError struct {
	kind error
	err  error
}

func wrapError(kind, err error) error {
	return &wrappedError{kind, err}
}

func (e *wrappedError) Error() string {
	return fmt.Sprintf("%s: %s", e.kind, e.err)
}

func (e *wrappedError) Unwrap() error {
	return e.err
}

func (e *wrappedError) Is(target error) bool {
	return target == e.kind
}
