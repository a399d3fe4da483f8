package wallet

import (
	"errors"
)

var (
	// ErrNullSeed ...
	ErrNullSeed = errors.New("seed must not be null")
	// ErrNullMnemonic ...
	ErrNullMnemonic = errors.New("mnemonic must not be null")
	// ErrNullDerivationPath ...
	ErrNullDerivationPath = errors.New("derivation path must not be null")
	// ErrNullExtendedKey ...
	ErrNullExtendedKey = errors.New("extended key must not be null")

	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrInvalidEntropySize ...
	ErrInvalidEntropySize = errors.New(
		"entropy size must be a multiple of 32 in the range [128,256]",
	)
	// ErrMalformedDerivationPath ...
	ErrMalformedDerivationPath = errors.New(
		"path must not start or end with a '/' and " +
			"can optionally start with 'm/' for absolute paths",
	)
	// ErrHardenedFromPublic is returned when a hardened step is requested from
	// a deriver that holds only public key material.
	ErrHardenedFromPublic = errors.New(
		"cannot derive a hardened path from an extended public key",
	)
	// ErrAmbiguousKeySource ...
	ErrAmbiguousKeySource = errors.New(
		"exactly one of seed, mnemonic or extended key must be provided",
	)
)
