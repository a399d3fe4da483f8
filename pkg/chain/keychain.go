package chain

import (
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyChain is the in-memory signing container of an address space. It maps
// addresses to the private keys able to spend from them.
type KeyChain struct {
	kind    Kind
	network Network

	lock      sync.RWMutex
	keys      map[string]*btcec.PrivateKey
	addresses []string
}

func NewKeyChain(kind Kind, net Network) *KeyChain {
	return &KeyChain{
		kind:      kind,
		network:   net,
		keys:      make(map[string]*btcec.PrivateKey),
		addresses: make([]string, 0),
	}
}

// AddKey enrolls the key of the given address and returns whether it was not
// already enrolled. Enrolling the same address twice is a no-op.
func (k *KeyChain) AddKey(addr string, key *btcec.PrivateKey) bool {
	k.lock.Lock()
	defer k.lock.Unlock()

	if _, ok := k.keys[addr]; ok {
		return false
	}
	k.keys[addr] = key
	k.addresses = append(k.addresses, addr)
	return true
}

func (k *KeyChain) Has(addr string) bool {
	k.lock.RLock()
	defer k.lock.RUnlock()

	_, ok := k.keys[addr]
	return ok
}

func (k *KeyChain) Key(addr string) (*btcec.PrivateKey, bool) {
	k.lock.RLock()
	defer k.lock.RUnlock()

	key, ok := k.keys[addr]
	return key, ok
}

// Addresses returns the enrolled addresses in enrollment order.
func (k *KeyChain) Addresses() []string {
	k.lock.RLock()
	defer k.lock.RUnlock()

	addresses := make([]string, len(k.addresses))
	copy(addresses, k.addresses)
	return addresses
}

func (k *KeyChain) Len() int {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return len(k.keys)
}

func (k *KeyChain) Kind() Kind {
	return k.kind
}

func (k *KeyChain) Network() Network {
	return k.network
}
