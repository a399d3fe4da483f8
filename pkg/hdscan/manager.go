package hdscan

import (
	"context"
	"sync"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/hdscan/pkg/chain"
	"github.com/tdex-network/hdscan/pkg/explorer"
	"github.com/tdex-network/hdscan/pkg/wallet"
)

type Status int

const (
	Uninitialized Status = iota
	Scanning
	Ready
)

func (s Status) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Ready:
		return "ready"
	default:
		return "uninitialized"
	}
}

// ManagerOpts is the struct given to NewManager.
type ManagerOpts struct {
	BasePath wallet.DerivationPath
	Deriver  KeyDeriver
	Chain    chain.Chain
	// WatchOnly prevents private keys from being derived and enrolled. It's
	// forced if the deriver can't produce private keys.
	WatchOnly bool
	// ScanConfig defaults to DefaultScanConfig() if zero.
	ScanConfig ScanConfig
}

func (o ManagerOpts) validate() error {
	if len(o.BasePath) <= 0 {
		return ErrNullBasePath
	}
	if o.Deriver == nil {
		return ErrNullDeriver
	}
	if o.Chain == nil {
		return ErrNullChain
	}
	if o.ScanConfig != (ScanConfig{}) {
		return o.ScanConfig.Validate()
	}
	return nil
}

// state is a committed, immutable view of the address space. Mutations
// build a new state and swap it with the current one only on success.
type state struct {
	chain    chain.Chain
	cache    *Cache
	keyChain *chain.KeyChain
	utxos    *explorer.UtxoSet
	index    uint32
}

// Manager keeps track of the current receiving index of an HD address space
// by looking at the utxos owned by its addresses.
//
// Initialize, Resync, OnNetworkChange and AdvanceIndex are serialized. Read
// accessors fail with ErrNotReady until the first successful initialization,
// then always serve the last committed state. This holds while a later
// Resync or OnNetworkChange is Scanning: reads never block on a scan and never
// observe its partial results.
type Manager struct {
	id       uuid.UUID
	basePath wallet.DerivationPath

	// deriver derives the entries at derivePath/index. For watch-only managers
	// built from a private deriver it's a public deriver rooted at basePath.
	deriver    KeyDeriver
	derivePath wallet.DerivationPath

	watchOnly  bool
	scanConfig ScanConfig

	mutex chan struct{}

	lock   sync.RWMutex
	status Status
	chain  chain.Chain
	state  *state

	log *log.Entry
}

func NewManager(opts ManagerOpts) (*Manager, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.ScanConfig == (ScanConfig{}) {
		opts.ScanConfig = DefaultScanConfig()
	}

	deriver, derivePath := opts.Deriver, opts.BasePath
	if opts.WatchOnly && deriver.IsPrivate() {
		if d, ok := deriver.(accountNeuterer); ok {
			account, err := d.NeuterAt(opts.BasePath)
			if err != nil {
				return nil, wrapError(ErrDerivation, err)
			}
			deriver, derivePath = account, wallet.DerivationPath{}
		}
	}

	id := uuid.New()
	return &Manager{
		id:         id,
		basePath:   opts.BasePath,
		deriver:    deriver,
		derivePath: derivePath,
		watchOnly:  opts.WatchOnly || !opts.Deriver.IsPrivate(),
		scanConfig: opts.ScanConfig,
		mutex:      make(chan struct{}, 1),
		status:     Uninitialized,
		chain:      opts.Chain,
		log: log.WithFields(log.Fields{
			"manager":   id.String(),
			"base_path": opts.BasePath.String(),
		}),
	}, nil
}

func (m *Manager) ID() uuid.UUID {
	return m.id
}

func (m *Manager) BasePath() wallet.DerivationPath {
	return append(wallet.DerivationPath{}, m.basePath...)
}

func (m *Manager) IsWatchOnly() bool {
	return m.watchOnly
}

func (m *Manager) Status() Status {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.status
}

// Chain returns the chain the address space is currently bound to.
func (m *Manager) Chain() chain.Chain {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.chain
}

// Initialize discards any previous state and scans the address space from
// scratch.
func (m *Manager) Initialize(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	c := m.Chain()
	return m.sync(ctx, c, m.newCache(c), 0)
}

// OnNetworkChange binds the address space to the given network of its chain
// and scans it from scratch. The previous network's state is kept in case of
// failure.
func (m *Manager) OnNetworkChange(ctx context.Context, net chain.Network) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	c, err := m.Chain().WithNetwork(net)
	if err != nil {
		return err
	}
	m.log.WithField("network", c.Network()).Info("switching network")
	return m.sync(ctx, c, m.newCache(c), 0)
}

// Resync scans the address space again and refreshes the utxo snapshot. The
// current index never decreases, unless the manager is not initialized yet,
// in which case Resync behaves like Initialize.
func (m *Manager) Resync(ctx context.Context) error {
	if err := m.acquire(ctx); err != nil {
		return err
	}
	defer m.release()

	st := m.committed()
	if st == nil {
		c := m.Chain()
		return m.sync(ctx, c, m.newCache(c), 0)
	}
	return m.sync(ctx, st.chain, st.cache, st.index)
}

// AdvanceIndex moves the current index one step forward and returns it. The
// key of the new index is enrolled into the key chain unless watch-only.
func (m *Manager) AdvanceIndex(ctx context.Context) (uint32, error) {
	if err := m.acquire(ctx); err != nil {
		return 0, err
	}
	defer m.release()

	st := m.committed()
	if st == nil {
		return 0, ErrNotReady
	}

	index := st.index + 1
	if index > m.scanConfig.MaxIndex {
		return 0, ErrIndexOutOfRange
	}
	if _, err := st.cache.Get(index); err != nil {
		return 0, err
	}

	next := *st
	next.index = index
	m.commit(&next)
	return index, nil
}

func (m *Manager) CurrentIndex() (uint32, error) {
	st, err := m.ready()
	if err != nil {
		return 0, err
	}
	return st.index, nil
}

func (m *Manager) CurrentAddress() (string, error) {
	st, err := m.ready()
	if err != nil {
		return "", err
	}
	return st.cache.Address(st.index)
}

func (m *Manager) CurrentKey() (Entry, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	return st.cache.Get(st.index)
}

// AddressesUpTo returns the addresses of indexes [0, limit].
func (m *Manager) AddressesUpTo(limit uint32) ([]string, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	if limit > m.scanConfig.MaxIndex {
		return nil, ErrIndexOutOfRange
	}
	return st.cache.AddressesUpTo(limit)
}

// Addresses returns the addresses of indexes [0, current index].
func (m *Manager) Addresses() ([]string, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	return st.cache.AddressesUpTo(st.index)
}

// KeysUpTo returns the entries of indexes [0, limit].
func (m *Manager) KeysUpTo(limit uint32) ([]Entry, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	if limit > m.scanConfig.MaxIndex {
		return nil, ErrIndexOutOfRange
	}
	return keysUpTo(st.cache, limit)
}

// Keys returns the entries of indexes [0, current index].
func (m *Manager) Keys() ([]Entry, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	return keysUpTo(st.cache, st.index)
}

// FirstAvailableAddress returns the first address below the current index
// that owns no utxos in the last snapshot, or the current address.
func (m *Manager) FirstAvailableAddress() (string, error) {
	entry, err := m.FirstAvailableKey()
	if err != nil {
		return "", err
	}
	return entry.Address(), nil
}

// FirstAvailableKey is like FirstAvailableAddress but returns the entry.
func (m *Manager) FirstAvailableKey() (Entry, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}

	for i := uint32(0); i < st.index; i++ {
		entry, err := st.cache.Get(i)
		if err != nil {
			return nil, err
		}
		fingerprint, err := st.chain.Fingerprint(entry.Address())
		if err != nil {
			return nil, wrapError(ErrDerivation, err)
		}
		if !st.utxos.IsOwned(fingerprint) {
			return entry, nil
		}
	}
	return st.cache.Get(st.index)
}

// Utxos returns the last utxo snapshot of the addresses [0, current index].
func (m *Manager) Utxos() (*explorer.UtxoSet, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	return st.utxos, nil
}

// KeyChain returns the signing container. It's empty for watch-only managers.
func (m *Manager) KeyChain() (*chain.KeyChain, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	return st.keyChain, nil
}

// FetchAtomicUtxos looks up the utxos owned by the addresses [0, current
// index] on the peer chain.
func (m *Manager) FetchAtomicUtxos(ctx context.Context) (*explorer.UtxoSet, error) {
	st, err := m.ready()
	if err != nil {
		return nil, err
	}
	addresses, err := st.cache.AddressesUpTo(st.index)
	if err != nil {
		return nil, err
	}

	utxos, err := st.chain.QueryAtomicUtxos(ctx, addresses)
	if err != nil {
		if ctx.Err() == nil {
			lookupFailures.With(chainLabels(st.chain)).Inc()
		}
		return nil, wrapError(ErrLookup, err)
	}
	return utxos, nil
}

// sync finds the current index with a gap scan starting from 0, raised to
// floor, rebuilds the key chain and the utxo snapshot for the addresses up to
// that index, and commits everything on success. If the address at the
// current index turns out to own utxos, the index is advanced by one more
// step.
func (m *Manager) sync(
	ctx context.Context, c chain.Chain, cache *Cache, floor uint32,
) error {
	m.setStatus(Scanning)
	defer m.restoreStatus()

	logger := m.log.WithFields(log.Fields{
		"chain":   c.Kind(),
		"network": c.Network(),
	})

	scanner, err := NewScanner(cache, c, m.scanConfig)
	if err != nil {
		return err
	}
	index, err := scanner.Find(ctx, 0)
	if err != nil {
		logger.WithError(err).Warn("gap scan failed")
		return err
	}
	if index < floor {
		index = floor
	}

	keyChain := c.NewKeyChain()
	if err := m.enroll(keyChain, cache, 0, index); err != nil {
		return err
	}

	addresses, err := cache.AddressesUpTo(index)
	if err != nil {
		return err
	}
	utxos, err := c.QueryUtxos(ctx, addresses)
	if err != nil {
		if ctx.Err() == nil {
			lookupFailures.With(chainLabels(c)).Inc()
		}
		logger.WithError(err).Warn("utxo snapshot failed")
		return wrapError(ErrLookup, err)
	}

	fingerprint, err := c.Fingerprint(addresses[index])
	if err != nil {
		return wrapError(ErrDerivation, err)
	}
	if utxos.IsOwned(fingerprint) && index < m.scanConfig.MaxIndex {
		index++
		if err := m.enroll(keyChain, cache, index, index); err != nil {
			return err
		}
	}

	cache.bindKeyChain(keyChain)
	m.commit(&state{
		chain:    c,
		cache:    cache,
		keyChain: keyChain,
		utxos:    utxos,
		index:    index,
	})

	logger.WithFields(log.Fields{
		"index": index,
		"utxos": utxos.Len(),
	}).Info("address space synced")
	return nil
}

// enroll adds the keys of [from, to] to the given key chain.
func (m *Manager) enroll(
	keyChain *chain.KeyChain, cache *Cache, from, to uint32,
) error {
	if m.watchOnly {
		return nil
	}
	for i := from; i <= to; i++ {
		entry, err := cache.Derive(i)
		if err != nil {
			return err
		}
		if e, ok := entry.(*SigningEntry); ok {
			keyChain.AddKey(e.Address(), e.PrivateKey())
		}
	}
	return nil
}

func (m *Manager) newCache(c chain.Chain) *Cache {
	return newCache(m.derivePath, m.deriver, c, m.watchOnly)
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.mutex <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() {
	<-m.mutex
}

func (m *Manager) committed() *state {
	m.lock.RLock()
	defer m.lock.RUnlock()

	return m.state
}

func (m *Manager) ready() (*state, error) {
	st := m.committed()
	if st == nil {
		return nil, ErrNotReady
	}
	return st, nil
}

func (m *Manager) commit(st *state) {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != nil && m.state.chain.Network() != st.chain.Network() {
		currentIndex.Delete(m.gaugeLabels(m.state.chain))
	}
	m.state = st
	m.chain = st.chain
	currentIndex.With(m.gaugeLabels(st.chain)).Set(float64(st.index))
}

func (m *Manager) setStatus(status Status) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.status = status
}

// restoreStatus sets the status after a sync according to whether any state
// has ever been committed.
func (m *Manager) restoreStatus() {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != nil {
		m.status = Ready
		return
	}
	m.status = Uninitialized
}

func (m *Manager) gaugeLabels(c chain.Chain) map[string]string {
	labels := chainLabels(c)
	labels["manager"] = m.id.String()
	return labels
}

func keysUpTo(cache *Cache, limit uint32) ([]Entry, error) {
	entries := make([]Entry, 0, limit+1)
	for i := uint32(0); i <= limit; i++ {
		entry, err := cache.Get(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
