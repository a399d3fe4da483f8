package explorer

import (
	"context"
)

// Utxo represents an unspent transaction output owned by one of the queried
// addresses. Values of confidential outputs are not revealed.
type Utxo interface {
	Hash() string
	Index() uint32
	Value() uint64
	Asset() string
	Address() string
	IsConfidential() bool
	IsConfirmed() bool
	// Key returns the unique identifier of the outpoint in the form txid:vout.
	Key() string
}

// Service is representation of an explorer that allows to fetch data from the
// blockchain.
type Service interface {
	// GetUnspents fetches the utxos of the given address.
	GetUnspents(ctx context.Context, addr string) (unspents []Utxo, err error)
	// GetUnspentsForAddresses fetches the utxos of the given list of addresses.
	// Either all addresses are queried successfully or an error is returned.
	GetUnspentsForAddresses(
		ctx context.Context,
		addresses []string,
	) (unspents []Utxo, err error)
	// GetBlockHeight returns the the number of block of the blockchain.
	GetBlockHeight(ctx context.Context) (int, error)
}
