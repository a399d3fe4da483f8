package hdscan

import (
	"github.com/btcsuite/btcd/btcec/v2"
)

// Entry is the immutable result of deriving an index of the address space.
type Entry interface {
	Index() uint32
	Address() string
	PublicKey() *btcec.PublicKey
}

// SigningEntry is an entry derived from private key material.
type SigningEntry struct {
	index      uint32
	address    string
	privateKey *btcec.PrivateKey
	publicKey  *btcec.PublicKey
}

func (e *SigningEntry) Index() uint32 {
	return e.index
}

func (e *SigningEntry) Address() string {
	return e.address
}

func (e *SigningEntry) PublicKey() *btcec.PublicKey {
	return e.publicKey
}

func (e *SigningEntry) PrivateKey() *btcec.PrivateKey {
	return e.privateKey
}

// WatchEntry is an entry of a watch-only address space.
type WatchEntry struct {
	index     uint32
	address   string
	publicKey *btcec.PublicKey
}

func (e *WatchEntry) Index() uint32 {
	return e.index
}

func (e *WatchEntry) Address() string {
	return e.address
}

func (e *WatchEntry) PublicKey() *btcec.PublicKey {
	return e.publicKey
}
