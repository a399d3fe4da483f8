package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/tdex-network/hdscan/pkg/explorer"
)

var (
	// ErrUnknownChain ...
	ErrUnknownChain = errors.New("unknown chain, must be one of bitcoin, liquid")
	// ErrUnknownNetwork ...
	ErrUnknownNetwork = errors.New(
		"unknown network, must be one of mainnet, testnet, regtest",
	)
	// ErrInvalidAddress ...
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidScript ...
	ErrInvalidScript = errors.New("script is not a single-address output script")
	// ErrNullExplorer ...
	ErrNullExplorer = errors.New("explorer service must not be null")
	// ErrNullPeerExplorer is returned when querying the peer chain of a chain
	// built without a peer explorer.
	ErrNullPeerExplorer = errors.New("peer explorer service must not be null")
)

// Chain bundles what an address space needs to know about the chain it lives
// on: how to encode addresses, how to build its containers, and how to look
// up the utxos of its addresses on the home chain and on the peer chain of an
// atomic swap.
type Chain interface {
	Kind() Kind
	Network() Network
	EncodeAddress(pubkey *btcec.PublicKey) (string, error)
	Fingerprint(addr string) ([]byte, error)
	NewKeyChain() *KeyChain
	NewUtxoSet() *explorer.UtxoSet
	// QueryUtxos returns the snapshot of the utxos owned by the given
	// addresses, indexed by their fingerprint.
	QueryUtxos(ctx context.Context, addresses []string) (*explorer.UtxoSet, error)
	// QueryAtomicUtxos is like QueryUtxos but looks up the peer chain for the
	// addresses sharing the output scripts of the given home addresses.
	QueryAtomicUtxos(ctx context.Context, addresses []string) (*explorer.UtxoSet, error)
	// WithNetwork returns a copy of the chain bound to the given network.
	WithNetwork(net Network) (Chain, error)
}

// NewChainOpts is the struct given to NewChain. PeerExplorer is optional and
// only required for atomic queries.
type NewChainOpts struct {
	Kind         Kind
	Network      Network
	Explorer     explorer.Service
	PeerExplorer explorer.Service
}

func (o *NewChainOpts) validate() error {
	kind, err := ParseKind(string(o.Kind))
	if err != nil {
		return err
	}
	net, err := ParseNetwork(string(o.Network))
	if err != nil {
		return err
	}
	if o.Explorer == nil {
		return ErrNullExplorer
	}
	o.Kind, o.Network = kind, net
	return nil
}

type chain struct {
	kind         Kind
	network      Network
	codec        Codec
	peerCodec    Codec
	explorer     explorer.Service
	peerExplorer explorer.Service
}

func NewChain(opts NewChainOpts) (Chain, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	codec, _ := CodecFor(opts.Kind)
	peerCodec, _ := CodecFor(opts.Kind.Peer())

	return &chain{
		kind:         opts.Kind,
		network:      opts.Network,
		codec:        codec,
		peerCodec:    peerCodec,
		explorer:     opts.Explorer,
		peerExplorer: opts.PeerExplorer,
	}, nil
}

func (c *chain) Kind() Kind {
	return c.kind
}

func (c *chain) Network() Network {
	return c.network
}

func (c *chain) EncodeAddress(pubkey *btcec.PublicKey) (string, error) {
	return c.codec.EncodeAddress(pubkey, c.network)
}

func (c *chain) Fingerprint(addr string) ([]byte, error) {
	return c.codec.Fingerprint(addr, c.network)
}

func (c *chain) NewKeyChain() *KeyChain {
	return NewKeyChain(c.kind, c.network)
}

func (c *chain) NewUtxoSet() *explorer.UtxoSet {
	return explorer.NewUtxoSet()
}

func (c *chain) QueryUtxos(
	ctx context.Context, addresses []string,
) (*explorer.UtxoSet, error) {
	return c.query(ctx, c.explorer, c.codec, addresses)
}

func (c *chain) QueryAtomicUtxos(
	ctx context.Context, addresses []string,
) (*explorer.UtxoSet, error) {
	if c.peerExplorer == nil {
		return nil, ErrNullPeerExplorer
	}

	peerAddresses := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		script, err := c.Fingerprint(addr)
		if err != nil {
			return nil, err
		}
		peerAddr, err := c.peerCodec.AddressFromScript(script, c.network)
		if err != nil {
			return nil, err
		}
		peerAddresses = append(peerAddresses, peerAddr)
	}

	return c.query(ctx, c.peerExplorer, c.peerCodec, peerAddresses)
}

func (c *chain) WithNetwork(net Network) (Chain, error) {
	net, err := ParseNetwork(string(net))
	if err != nil {
		return nil, err
	}
	cc := *c
	cc.network = net
	return &cc, nil
}

func (c *chain) query(
	ctx context.Context, svc explorer.Service, codec Codec, addresses []string,
) (*explorer.UtxoSet, error) {
	fingerprints := make(map[string][]byte, len(addresses))
	for _, addr := range addresses {
		script, err := codec.Fingerprint(addr, c.network)
		if err != nil {
			return nil, err
		}
		fingerprints[addr] = script
	}

	utxos, err := svc.GetUnspentsForAddresses(ctx, addresses)
	if err != nil {
		return nil, err
	}

	set := c.NewUtxoSet()
	for _, u := range utxos {
		script, ok := fingerprints[u.Address()]
		if !ok {
			return nil, fmt.Errorf(
				"explorer returned utxo %s for unrequested address %s",
				u.Key(), u.Address(),
			)
		}
		set.Add(script, u)
	}
	return set, nil
}
