package hdscan

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

func TestCacheDeterminism(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	cache := newCache(testBasePath, newTestDeriver(t), c, false)

	first, err := cache.Get(7)
	require.NoError(t, err)
	second, err := cache.Get(7)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, uint32(7), first.Index())
	assert.Equal(t, 1, cache.Len())

	// a fresh cache derives the very same entry
	other := newCache(testBasePath, newTestDeriver(t), c, false)
	third, err := other.Derive(7)
	require.NoError(t, err)
	assert.Equal(t, first.Address(), third.Address())
	assert.Equal(
		t,
		first.PublicKey().SerializeCompressed(),
		third.PublicKey().SerializeCompressed(),
	)
	assert.Equal(
		t,
		first.(*SigningEntry).PrivateKey().Serialize(),
		third.(*SigningEntry).PrivateKey().Serialize(),
	)

	cache.Clear()
	assert.Equal(t, 0, cache.Len())
	fourth, err := cache.Get(7)
	require.NoError(t, err)
	assert.Equal(t, first.Address(), fourth.Address())
}

func TestCacheEnrollment(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	cache := newCache(testBasePath, newTestDeriver(t), c, false)
	keyChain := c.NewKeyChain()
	cache.bindKeyChain(keyChain)

	for i := 0; i < 3; i++ {
		_, err := cache.Get(3)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, keyChain.Len())

	// derived but not accessed entries are not enrolled
	entry, err := cache.Derive(4)
	require.NoError(t, err)
	assert.False(t, keyChain.Has(entry.Address()))

	_, err = cache.Get(4)
	require.NoError(t, err)
	assert.True(t, keyChain.Has(entry.Address()))
	assert.Equal(t, 2, keyChain.Len())
}

func TestWatchOnlyCache(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	signing := newCache(testBasePath, newTestDeriver(t), c, false)
	cache := newCache(testBasePath, newTestDeriver(t), c, true)
	keyChain := c.NewKeyChain()
	cache.bindKeyChain(keyChain)

	entry, err := cache.Get(0)
	require.NoError(t, err)
	_, ok := entry.(*WatchEntry)
	require.True(t, ok)
	assert.Equal(t, 0, keyChain.Len())

	expected, err := signing.Get(0)
	require.NoError(t, err)
	assert.Equal(t, expected.Address(), entry.Address())
}

func TestCacheDerivationFailure(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	failure := errors.New("derivation failed")

	deriver := &mockDeriver{}
	deriver.On("Derive", mock.Anything).Return(nil, failure)
	cache := newCache(wallet.DerivationPath{0}, deriver, c, false)

	_, err := cache.Get(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDerivation))
	assert.True(t, errors.Is(err, failure))
	assert.Equal(t, 0, cache.Len())
	deriver.AssertCalled(t, "Derive", wallet.DerivationPath{0, 1})

	_, err = cache.Address(hdkeychain.HardenedKeyStart)
	assert.True(t, errors.Is(err, ErrDerivation))
	deriver.AssertNumberOfCalls(t, "Derive", 1)
}

func TestCacheAddresses(t *testing.T) {
	c := newTestChain(t, chain.Regtest, newFakeExplorer(), nil)
	cache := newCache(testBasePath, newTestDeriver(t), c, false)

	addresses, err := cache.AddressesUpTo(4)
	require.NoError(t, err)
	require.Len(t, addresses, 5)
	assert.Equal(t, testAddresses(t, c, 0, 1, 2, 3, 4), addresses)

	addresses, err = cache.AddressRange(2, 4)
	require.NoError(t, err)
	assert.Equal(t, testAddresses(t, c, 2, 3), addresses)
}
