package hdscan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

var testScanConfig = ScanConfig{GapSize: 3, BatchSize: 5, MaxIndex: 100}

func newTestManager(
	t *testing.T, svc, peer *fakeExplorer, used ...uint32,
) (*Manager, chain.Chain) {
	c := newTestChain(t, chain.Regtest, svc, peer)
	svc.setUsed(testAddresses(t, c, used...)...)

	m, err := NewManager(ManagerOpts{
		BasePath:   testBasePath,
		Deriver:    newTestDeriver(t),
		Chain:      c,
		ScanConfig: testScanConfig,
	})
	require.NoError(t, err)
	return m, c
}

func TestManagerBasePath(t *testing.T) {
	m, _ := newTestManager(t, newFakeExplorer(), nil)

	path := m.BasePath()
	assert.Equal(t, testBasePath, path)

	path[0] = 0
	assert.Equal(t, testBasePath, m.BasePath())
}

func TestFailingNewManager(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	deriver := newTestDeriver(t)

	tests := []struct {
		opts ManagerOpts
		err  error
	}{
		{ManagerOpts{Deriver: deriver, Chain: c}, ErrNullBasePath},
		{ManagerOpts{BasePath: testBasePath, Chain: c}, ErrNullDeriver},
		{ManagerOpts{BasePath: testBasePath, Deriver: deriver}, ErrNullChain},
		{
			ManagerOpts{
				BasePath:   testBasePath,
				Deriver:    deriver,
				Chain:      c,
				ScanConfig: ScanConfig{GapSize: 5, BatchSize: 5, MaxIndex: 10},
			},
			ErrInvalidScanConfig,
		},
	}

	for _, tt := range tests {
		_, err := NewManager(tt.opts)
		assert.Equal(t, tt.err, err)
	}
}

func TestNotReady(t *testing.T) {
	m, _ := newTestManager(t, newFakeExplorer(), nil)
	ctx := context.Background()

	assert.Equal(t, Uninitialized, m.Status())

	_, err := m.CurrentIndex()
	assert.Equal(t, ErrNotReady, err)
	_, err = m.CurrentAddress()
	assert.Equal(t, ErrNotReady, err)
	_, err = m.Addresses()
	assert.Equal(t, ErrNotReady, err)
	_, err = m.FirstAvailableKey()
	assert.Equal(t, ErrNotReady, err)
	_, err = m.Utxos()
	assert.Equal(t, ErrNotReady, err)
	_, err = m.AdvanceIndex(ctx)
	assert.Equal(t, ErrNotReady, err)
	_, err = m.FetchAtomicUtxos(ctx)
	assert.Equal(t, ErrNotReady, err)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name     string
		used     []uint32
		expected uint32
	}{
		{"empty address space", nil, 0},
		{"contiguous activity", []uint32{0, 1, 2}, 3},
		{"sparse activity", []uint32{0, 1, 2, 4}, 5},
	}

	for _, tt := range tests {
		m, c := newTestManager(t, newFakeExplorer(), nil, tt.used...)

		err := m.Initialize(context.Background())
		require.NoError(t, err, tt.name)
		assert.Equal(t, Ready, m.Status(), tt.name)

		index, err := m.CurrentIndex()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, index, tt.name)

		addresses, err := m.Addresses()
		require.NoError(t, err)
		require.Len(t, addresses, int(tt.expected)+1)
		current, err := m.CurrentAddress()
		require.NoError(t, err)
		assert.Equal(t, addresses[tt.expected], current)

		keyChain, err := m.KeyChain()
		require.NoError(t, err)
		assert.Equal(t, addresses, keyChain.Addresses(), tt.name)
		assert.Equal(t, chain.Regtest, keyChain.Network())

		utxos, err := m.Utxos()
		require.NoError(t, err)
		assert.Equal(t, len(tt.used), utxos.Len(), tt.name)

		keys, err := m.Keys()
		require.NoError(t, err)
		require.Len(t, keys, int(tt.expected)+1)
		for i, key := range keys {
			assert.Equal(t, uint32(i), key.Index())
			assert.Equal(t, testAddresses(t, c, uint32(i))[0], key.Address())
		}
	}
}

func TestFailingInitialize(t *testing.T) {
	svc := newFakeExplorer()
	failure := errors.New("explorer unreachable")
	svc.failAfter(0, failure)
	m, _ := newTestManager(t, svc, nil)

	err := m.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookup))
	assert.True(t, errors.Is(err, failure))
	assert.Equal(t, Uninitialized, m.Status())

	_, err = m.CurrentIndex()
	assert.Equal(t, ErrNotReady, err)

	svc.heal()
	require.NoError(t, m.Resync(context.Background()))
	assert.Equal(t, Ready, m.Status())
}

func TestResyncAdvancesOnBoundaryActivity(t *testing.T) {
	svc := newFakeExplorer()
	m, c := newTestManager(t, svc, nil, 0, 1, 2)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	index, _ := m.CurrentIndex()
	require.Equal(t, uint32(3), index)

	// activity lands on index 3 after the scan but before the snapshot
	boundary := testAddresses(t, c, 3)[0]
	svc.setOnCall(func(addresses []string) {
		if len(addresses) == 4 {
			svc.setUsed(boundary)
		}
	})

	require.NoError(t, m.Resync(ctx))
	index, _ = m.CurrentIndex()
	assert.Equal(t, uint32(4), index)

	keyChain, _ := m.KeyChain()
	assert.Equal(t, 5, keyChain.Len())
	assert.True(t, keyChain.Has(testAddresses(t, c, 4)[0]))
	utxos, _ := m.Utxos()
	assert.Equal(t, 4, utxos.Len())

	// the next resync sees index 4 unused and doesn't move further
	svc.setOnCall(nil)
	require.NoError(t, m.Resync(ctx))
	index, _ = m.CurrentIndex()
	assert.Equal(t, uint32(4), index)
}

func TestResyncIsMonotonic(t *testing.T) {
	svc := newFakeExplorer()
	m, _ := newTestManager(t, svc, nil, 0, 1, 2)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))

	// all utxos have been spent
	svc.reset()
	require.NoError(t, m.Resync(ctx))
	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(3), index)
	utxos, _ := m.Utxos()
	assert.Equal(t, 0, utxos.Len())

	// an explicit initialization starts from scratch
	require.NoError(t, m.Initialize(ctx))
	index, _ = m.CurrentIndex()
	assert.Equal(t, uint32(0), index)
}

func TestFailingResyncKeepsState(t *testing.T) {
	svc := newFakeExplorer()
	m, c := newTestManager(t, svc, nil, 0, 1, 2)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	utxos, _ := m.Utxos()
	keyChain, _ := m.KeyChain()

	// new activity is found by the scan but the snapshot fails
	svc.setUsed(testAddresses(t, c, 3, 4, 5)...)
	failure := errors.New("explorer unreachable")
	svc.failAfter(4, failure)

	err := m.Resync(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookup))
	assert.Equal(t, Ready, m.Status())

	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(3), index)
	currentUtxos, _ := m.Utxos()
	assert.True(t, utxos == currentUtxos)
	currentKeyChain, _ := m.KeyChain()
	assert.True(t, keyChain == currentKeyChain)
	assert.Equal(t, 4, keyChain.Len())

	svc.heal()
	require.NoError(t, m.Resync(ctx))
	index, _ = m.CurrentIndex()
	assert.Equal(t, uint32(6), index)
}

func TestResyncTimeout(t *testing.T) {
	svc := newFakeExplorer()
	m, _ := newTestManager(t, svc, nil, 0, 1, 2)
	require.NoError(t, m.Initialize(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	svc.setOnCall(func([]string) {
		<-ctx.Done()
	})

	err := m.Resync(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookup))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(3), index)
}

func TestOnNetworkChange(t *testing.T) {
	svc := newFakeExplorer()
	m, _ := newTestManager(t, svc, nil, 0, 1, 2)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	before, err := m.AddressesUpTo(2)
	require.NoError(t, err)
	keyBefore, err := m.FirstAvailableKey()
	require.NoError(t, err)

	require.NoError(t, m.OnNetworkChange(ctx, chain.Testnet))
	assert.Equal(t, chain.Testnet, m.Chain().Network())

	// no activity on testnet
	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(0), index)

	require.NoError(t, m.Resync(ctx))
	after, err := m.AddressesUpTo(2)
	require.NoError(t, err)
	require.Len(t, after, 3)
	for i := range before {
		assert.NotEqual(t, before[i], after[i])
	}

	keyChain, _ := m.KeyChain()
	assert.Equal(t, chain.Testnet, keyChain.Network())
	assert.Equal(t, 1, keyChain.Len())

	// same key material on both networks
	keyAfter, err := m.CurrentKey()
	require.NoError(t, err)
	keys, err := m.KeysUpTo(3)
	require.NoError(t, err)
	assert.Equal(t, keyAfter.PublicKey().SerializeCompressed(), keys[0].PublicKey().SerializeCompressed())
	assert.Equal(t, keyBefore.PublicKey().SerializeCompressed(), keys[3].PublicKey().SerializeCompressed())
}

func TestFailingOnNetworkChange(t *testing.T) {
	svc := newFakeExplorer()
	m, _ := newTestManager(t, svc, nil, 0, 1, 2)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	before, _ := m.Addresses()

	err := m.OnNetworkChange(ctx, chain.Network("signet"))
	assert.Equal(t, chain.ErrUnknownNetwork, err)

	svc.failAfter(0, errors.New("explorer unreachable"))
	err = m.OnNetworkChange(ctx, chain.Testnet)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLookup))

	assert.Equal(t, chain.Regtest, m.Chain().Network())
	after, _ := m.Addresses()
	assert.Equal(t, before, after)
	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(3), index)
}

func TestAdvanceIndex(t *testing.T) {
	svc := newFakeExplorer()
	c := newTestChain(t, chain.Regtest, svc, nil)
	m, err := NewManager(ManagerOpts{
		BasePath:   testBasePath,
		Deriver:    newTestDeriver(t),
		Chain:      c,
		ScanConfig: ScanConfig{GapSize: 2, BatchSize: 4, MaxIndex: 5},
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	keyChain, _ := m.KeyChain()
	require.Equal(t, 1, keyChain.Len())

	for i := uint32(1); i <= 5; i++ {
		index, err := m.AdvanceIndex(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, index)
		assert.Equal(t, int(i)+1, keyChain.Len())

		// accessing the current key again doesn't enroll it twice
		_, err = m.CurrentKey()
		require.NoError(t, err)
		assert.Equal(t, int(i)+1, keyChain.Len())
	}

	_, err = m.AdvanceIndex(ctx)
	assert.Equal(t, ErrIndexOutOfRange, err)
	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(5), index)

	_, err = m.AddressesUpTo(6)
	assert.Equal(t, ErrIndexOutOfRange, err)
}

func TestFirstAvailable(t *testing.T) {
	tests := []struct {
		name     string
		used     []uint32
		expected uint32
	}{
		{"hole below current index", []uint32{0, 2}, 1},
		{"no hole", []uint32{0, 1, 2}, 3},
		{"empty address space", nil, 0},
	}

	for _, tt := range tests {
		svc := newFakeExplorer()
		m, c := newTestManager(t, svc, nil, tt.used...)
		require.NoError(t, m.Initialize(context.Background()))
		calls := svc.numOfCalls()

		addr, err := m.FirstAvailableAddress()
		require.NoError(t, err)
		assert.Equal(t, testAddresses(t, c, tt.expected)[0], addr, tt.name)

		key, err := m.FirstAvailableKey()
		require.NoError(t, err)
		assert.Equal(t, tt.expected, key.Index(), tt.name)

		// local lookups only
		assert.Equal(t, calls, svc.numOfCalls())
	}
}

func TestWatchOnlyManager(t *testing.T) {
	deriver := newTestDeriver(t)
	xprv, err := deriver.ExtendedKey(testBasePath[:3])
	require.NoError(t, err)
	account, err := wallet.NewHDKeyDeriver(wallet.NewHDKeyDeriverOpts{ExtendedKey: xprv})
	require.NoError(t, err)
	xpub, err := account.Neuter()
	require.NoError(t, err)

	svc := newFakeExplorer()
	c := newTestChain(t, chain.Regtest, svc, nil)
	svc.setUsed(testAddresses(t, c, 0, 1)...)

	m, err := NewManager(ManagerOpts{
		BasePath:   wallet.DerivationPath{0},
		Deriver:    xpub,
		Chain:      c,
		ScanConfig: testScanConfig,
	})
	require.NoError(t, err)
	require.True(t, m.IsWatchOnly())
	ctx := context.Background()

	require.NoError(t, m.Initialize(ctx))
	index, _ := m.CurrentIndex()
	assert.Equal(t, uint32(2), index)

	addresses, _ := m.Addresses()
	assert.Equal(t, testAddresses(t, c, 0, 1, 2), addresses)

	_, err = m.AdvanceIndex(ctx)
	require.NoError(t, err)

	keys, err := m.Keys()
	require.NoError(t, err)
	for _, key := range keys {
		_, ok := key.(*WatchEntry)
		assert.True(t, ok)
	}
	keyChain, _ := m.KeyChain()
	assert.Equal(t, 0, keyChain.Len())

	// watch-only can also be requested for private derivers
	forced, err := NewManager(ManagerOpts{
		BasePath:   testBasePath,
		Deriver:    deriver,
		Chain:      c,
		WatchOnly:  true,
		ScanConfig: testScanConfig,
	})
	require.NoError(t, err)
	assert.True(t, forced.IsWatchOnly())
	assert.False(t, forced.deriver.IsPrivate())
	assert.Equal(t, testBasePath, forced.BasePath())

	require.NoError(t, forced.Initialize(ctx))
	forcedAddresses, err := forced.Addresses()
	require.NoError(t, err)
	assert.Equal(t, addresses, forcedAddresses)

	forcedKeys, err := forced.Keys()
	require.NoError(t, err)
	for _, key := range forcedKeys {
		_, ok := key.(*WatchEntry)
		assert.True(t, ok)
	}
}

func TestReadsDuringScanServeCommittedState(t *testing.T) {
	svc := newFakeExplorer()
	m, c := newTestManager(t, svc, nil, 0, 1)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	svc.setUsed(testAddresses(t, c, 0, 1, 2, 3)...)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	svc.setOnCall(func([]string) {
		once.Do(func() { close(started) })
		<-release
	})

	done := make(chan error, 1)
	go func() { done <- m.Resync(ctx) }()
	<-started

	assert.Equal(t, Scanning, m.Status())
	index, err := m.CurrentIndex()
	require.NoError(t, err)
	assert.Equal(t, uint32(2), index)
	addr, err := m.CurrentAddress()
	require.NoError(t, err)
	assert.Equal(t, testAddresses(t, c, 2)[0], addr)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, Ready, m.Status())
	index, _ = m.CurrentIndex()
	assert.Equal(t, uint32(4), index)
}

func TestFetchAtomicUtxos(t *testing.T) {
	svc, peer := newFakeExplorer(), newFakeExplorer()
	m, c := newTestManager(t, svc, peer, 0, 1, 2)
	ctx := context.Background()
	require.NoError(t, m.Initialize(ctx))

	btc, err := chain.CodecFor(chain.Bitcoin)
	require.NoError(t, err)
	home := testAddresses(t, c, 1)[0]
	fingerprint, err := c.Fingerprint(home)
	require.NoError(t, err)
	peerAddr, err := btc.AddressFromScript(fingerprint, chain.Regtest)
	require.NoError(t, err)
	peer.setUsed(peerAddr)

	utxos, err := m.FetchAtomicUtxos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, utxos.Len())
	assert.Len(t, utxos.IDsOwnedBy(fingerprint), 1)
	assert.Equal(t, 1, peer.numOfCalls())

	// the home snapshot is not affected
	homeUtxos, _ := m.Utxos()
	assert.Equal(t, 3, homeUtxos.Len())

	noPeer, _ := newTestManager(t, newFakeExplorer(), nil)
	require.NoError(t, noPeer.Initialize(ctx))
	_, err = noPeer.FetchAtomicUtxos(ctx)
	assert.True(t, errors.Is(err, ErrLookup))
	assert.True(t, errors.Is(err, chain.ErrNullPeerExplorer))
}

func TestSerializedMutations(t *testing.T) {
	svc := newFakeExplorer()
	m, _ := newTestManager(t, svc, nil, 0, 1, 2)
	require.NoError(t, m.Initialize(context.Background()))

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	svc.setOnCall(func([]string) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	errc := make(chan error, 1)
	go func() {
		errc <- m.Resync(context.Background())
	}()
	<-started

	assert.Equal(t, Scanning, m.Status())
	// reads are served from the last committed state
	index, err := m.CurrentIndex()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), index)

	// mutations queue behind the one in flight
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = m.AdvanceIndex(ctx)
	assert.Equal(t, context.DeadlineExceeded, err)

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, Ready, m.Status())

	index, err = m.AdvanceIndex(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(4), index)
}

func TestManagerHardenedBasePath(t *testing.T) {
	deriver := newTestDeriver(t)
	xpub, err := deriver.Neuter()
	require.NoError(t, err)
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)

	m, err := NewManager(ManagerOpts{
		BasePath:   wallet.DerivationPath{hdkeychain.HardenedKeyStart},
		Deriver:    xpub,
		Chain:      c,
		ScanConfig: testScanConfig,
	})
	require.NoError(t, err)

	err = m.Initialize(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDerivation))
	assert.True(t, errors.Is(err, wallet.ErrHardenedFromPublic))
}
