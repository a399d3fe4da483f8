package chain

import (
	"strings"
)

// Kind identifies the family of chain an address space lives on.
type Kind string

// Network identifies one of the networks of a chain kind.
type Network string

const (
	Bitcoin Kind = "bitcoin"
	Liquid  Kind = "liquid"

	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Regtest Network = "regtest"
)

// ParseKind returns the chain kind matching the given case-insensitive name.
func ParseKind(kind string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(kind))); k {
	case Bitcoin, Liquid:
		return k, nil
	default:
		return "", ErrUnknownChain
	}
}

// ParseNetwork returns the network matching the given case-insensitive name.
// "liquid" and "mainnet" are aliases, as well as "testnet3" and "testnet".
func ParseNetwork(net string) (Network, error) {
	switch n := strings.ToLower(strings.TrimSpace(net)); n {
	case "mainnet", "liquid", "bitcoin":
		return Mainnet, nil
	case "testnet", "testnet3":
		return Testnet, nil
	case "regtest":
		return Regtest, nil
	default:
		return "", ErrUnknownNetwork
	}
}

// Peer returns the kind on the other side of an atomic swap.
func (k Kind) Peer() Kind {
	if k == Bitcoin {
		return Liquid
	}
	return Bitcoin
}

func (k Kind) String() string {
	return string(k)
}

func (n Network) String() string {
	return string(n)
}
