package hdscan

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/explorer"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

const testSeed = "000102030405060708090a0b0c0d0e0f"

var testBasePath = wallet.DerivationPath{
	hdkeychain.HardenedKeyStart + 84, hdkeychain.HardenedKeyStart, hdkeychain.HardenedKeyStart, 0,
}

func newTestDeriver(t *testing.T) *wallet.HDKeyDeriver {
	seed, _ := hex.DecodeString(testSeed)
	deriver, err := wallet.NewHDKeyDeriver(wallet.NewHDKeyDeriverOpts{Seed: seed})
	require.NoError(t, err)
	return deriver
}

func newTestChain(
	t *testing.T, net chain.Network, home, peer *fakeExplorer,
) chain.Chain {
	opts := chain.NewChainOpts{
		Kind:     chain.Liquid,
		Network:  net,
		Explorer: home,
	}
	if peer != nil {
		opts.PeerExplorer = peer
	}
	c, err := chain.NewChain(opts)
	require.NoError(t, err)
	return c
}

// testAddresses returns the addresses of the given indexes of the test
// address space.
func testAddresses(t *testing.T, c chain.Chain, indexes ...uint32) []string {
	cache := newCache(testBasePath, newTestDeriver(t), c, false)
	addresses := make([]string, 0, len(indexes))
	for _, i := range indexes {
		addr, err := cache.Address(i)
		require.NoError(t, err)
		addresses = append(addresses, addr)
	}
	return addresses
}

// fakeExplorer is an in-memory utxo oracle. Every used address owns exactly
// one utxo.
type fakeExplorer struct {
	lock  sync.Mutex
	used  map[string]bool
	calls int

	// failFrom makes every call to GetUnspentsForAddresses starting from the
	// n-th one fail with err.
	failFrom int
	err    error
	// onCall is invoked at the beginning of every call with the queried
	// addresses.
	onCall func(addresses []string)
}

func newFakeExplorer(used ...string) *fakeExplorer {
	f := &fakeExplorer{used: make(map[string]bool)}
	f.setUsed(used...)
	return f
}

func (f *fakeExplorer) setUsed(addresses ...string) {
	f.lock.Lock()
	defer f.lock.Unlock()

	for _, addr := range addresses {
		f.used[addr] = true
	}
}

func (f *fakeExplorer) reset() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.used = make(map[string]bool)
}

// failAfter makes the explorer fail after n more successful calls.
func (f *fakeExplorer) failAfter(n int, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failFrom = f.calls + n + 1
	f.err = err
}

func (f *fakeExplorer) heal() {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.failFrom = 0
	f.err = nil
}

func (f *fakeExplorer) setOnCall(onCall func(addresses []string)) {
	f.lock.Lock()
	defer f.lock.Unlock()

	f.onCall = onCall
}

func (f *fakeExplorer) numOfCalls() int {
	f.lock.Lock()
	defer f.lock.Unlock()

	return f.calls
}

func (f *fakeExplorer) GetUnspents(
	ctx context.Context, addr string,
) ([]explorer.Utxo, error) {
	return f.GetUnspentsForAddresses(ctx, []string{addr})
}

func (f *fakeExplorer) GetUnspentsForAddresses(
	ctx context.Context, addresses []string,
) ([]explorer.Utxo, error) {
	f.lock.Lock()
	f.calls++
	n := f.calls
	onCall := f.onCall
	f.lock.Unlock()

	if onCall != nil {
		onCall(addresses)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.lock.Lock()
	defer f.lock.Unlock()

	if f.failFrom > 0 && n >= f.failFrom {
		return nil, f.err
	}
	utxos := make([]explorer.Utxo, 0)
	for _, addr := range addresses {
		if f.used[addr] {
			utxos = append(utxos, explorer.NewWitnessUtxo(addr, 0, 1000, "", addr, true))
		}
	}
	return utxos, nil
}

func (f *fakeExplorer) GetBlockHeight(context.Context) (int, error) {
	return 0, nil
}

type mockDeriver struct {
	mock.Mock
}

func (m *mockDeriver) Derive(path wallet.DerivationPath) (*wallet.KeyPair, error) {
	args := m.Called(path)
	var res *wallet.KeyPair
	if a := args.Get(0); a != nil {
		res = a.(*wallet.KeyPair)
	}
	return res, args.Error(1)
}

func (m *mockDeriver) IsPrivate() bool {
	args := m.Called()
	return args.Bool(0)
}
