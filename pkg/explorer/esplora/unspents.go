package esplora

import (
	"context"
	"fmt"

	"github.com/tdex-network/hdscan/pkg/explorer"
	"golang.org/x/sync/errgroup"
)

func (e *esplora) GetUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	url := fmt.Sprintf("%s/address/%s/utxo", e.apiURL, addr)
	resp, err := e.get(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error on retrieving utxos for %s: %w", addr, err)
	}

	utxos, err := explorer.NewUtxosFromJSON(resp, addr)
	if err != nil {
		return nil, fmt.Errorf("error on parsing utxos for %s: %w", addr, err)
	}
	return utxos, nil
}

// GetUnspentsForAddresses fetches the utxos of every address concurrently.
// The first failing request cancels the others and its error is returned.
// Utxos are returned in the order of the given addresses.
func (e *esplora) GetUnspentsForAddresses(
	ctx context.Context, addresses []string,
) ([]explorer.Utxo, error) {
	unspentsByAddress := make([][]explorer.Utxo, len(addresses))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(e.maxConcurrency)
	for i := range addresses {
		i := i
		eg.Go(func() error {
			unspents, err := e.GetUnspents(ctx, addresses[i])
			if err != nil {
				return err
			}
			unspentsByAddress[i] = unspents
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	unspents := make([]explorer.Utxo, 0)
	for _, u := range unspentsByAddress {
		unspents = append(unspents, u...)
	}
	return unspents, nil
}
