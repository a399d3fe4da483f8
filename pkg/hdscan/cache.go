package hdscan

import (
	"fmt"
	"sync"

	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

// KeyDeriver deterministically derives the key pair at a path relative to a
// root key.
type KeyDeriver interface {
	Derive(path wallet.DerivationPath) (*wallet.KeyPair, error)
	IsPrivate() bool
}

// accountNeuterer is implemented by private derivers that can hand out a
// public-only deriver rooted at the given path, used for watch-only managers
// so that no private key is ever derived.
type accountNeuterer interface {
	NeuterAt(path wallet.DerivationPath) (*wallet.HDKeyDeriver, error)
}

// Cache memoizes the entries of an address space rooted at basePath and bound
// to the network of its chain. Entries are never evicted: a cache is dropped
// as a whole when the network changes.
//
// Get enrolls signing entries into the key chain the cache is bound to, if
// any, on every call: the key chain ignores keys it already holds, so each
// index ends up enrolled at most once. Derive only memoizes, and is what
// scans use so that a failing scan leaves the key chain untouched.
type Cache struct {
	basePath  wallet.DerivationPath
	deriver   KeyDeriver
	chain     chain.Chain
	watchOnly bool

	lock     sync.RWMutex
	entries  map[uint32]Entry
	keyChain *chain.KeyChain
}

func newCache(
	basePath wallet.DerivationPath, deriver KeyDeriver,
	c chain.Chain, watchOnly bool,
) *Cache {
	return &Cache{
		basePath:  basePath,
		deriver:   deriver,
		chain:     c,
		watchOnly: watchOnly,
		entries:   make(map[uint32]Entry),
	}
}

// Get returns the entry at the given index and, for signing entries, makes
// sure its key is enrolled in the bound key chain.
func (c *Cache) Get(index uint32) (Entry, error) {
	entry, err := c.Derive(index)
	if err != nil {
		return nil, err
	}

	c.lock.RLock()
	keyChain := c.keyChain
	c.lock.RUnlock()

	if e, ok := entry.(*SigningEntry); ok && keyChain != nil {
		keyChain.AddKey(e.Address(), e.PrivateKey())
	}
	return entry, nil
}

// Derive returns the entry at the given index, computing and storing it on
// first access.
func (c *Cache) Derive(index uint32) (Entry, error) {
	c.lock.RLock()
	entry, ok := c.entries[index]
	c.lock.RUnlock()
	if ok {
		return entry, nil
	}

	entry, err := c.derive(index)
	if err != nil {
		return nil, err
	}

	c.lock.Lock()
	defer c.lock.Unlock()
	if cached, ok := c.entries[index]; ok {
		return cached, nil
	}
	c.entries[index] = entry
	return entry, nil
}

func (c *Cache) Address(index uint32) (string, error) {
	entry, err := c.Derive(index)
	if err != nil {
		return "", err
	}
	return entry.Address(), nil
}

// AddressesUpTo returns the addresses of indexes [0, limit].
func (c *Cache) AddressesUpTo(limit uint32) ([]string, error) {
	return c.AddressRange(0, limit+1)
}

// AddressRange returns the addresses of indexes [from, to).
func (c *Cache) AddressRange(from, to uint32) ([]string, error) {
	addresses := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		addr, err := c.Address(i)
		if err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, nil
}

// Clear discards all entries.
func (c *Cache) Clear() {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.entries = make(map[uint32]Entry)
}

func (c *Cache) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return len(c.entries)
}

func (c *Cache) bindKeyChain(keyChain *chain.KeyChain) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.keyChain = keyChain
}

func (c *Cache) derive(index uint32) (Entry, error) {
	if index >= maxNonHardenedIndex {
		return nil, wrapError(
			ErrDerivation, fmt.Errorf("index %d is in the hardened range", index),
		)
	}

	keyPair, err := c.deriver.Derive(c.basePath.Child(index))
	if err != nil {
		return nil, wrapError(ErrDerivation, err)
	}
	addr, err := c.chain.EncodeAddress(keyPair.PublicKey)
	if err != nil {
		return nil, wrapError(ErrDerivation, err)
	}

	if c.watchOnly || keyPair.PrivateKey == nil {
		return &WatchEntry{index, addr, keyPair.PublicKey}, nil
	}
	return &SigningEntry{index, addr, keyPair.PrivateKey, keyPair.PublicKey}, nil
}
