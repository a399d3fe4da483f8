package hdscan

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/tdex-network/hdscan/pkg/chain"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultGapSize is the number of consecutive unused addresses required
	// to consider an index available.
	DefaultGapSize = 20
	// DefaultBatchSize is the number of addresses looked up per round trip.
	DefaultBatchSize = 70
	// DefaultMaxIndex is the highest index a scan is allowed to look up.
	DefaultMaxIndex = 100000

	maxNonHardenedIndex = hdkeychain.HardenedKeyStart
)

type ScanConfig struct {
	GapSize   uint32
	BatchSize uint32
	MaxIndex  uint32
	// Prefetch makes the scanner look up the next batch while the current one
	// is still in flight.
	Prefetch bool
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		GapSize:   DefaultGapSize,
		BatchSize: DefaultBatchSize,
		MaxIndex:  DefaultMaxIndex,
	}
}

func (c ScanConfig) Validate() error {
	if c.GapSize == 0 || c.BatchSize <= c.GapSize {
		return ErrInvalidScanConfig
	}
	if c.MaxIndex >= maxNonHardenedIndex || c.MaxIndex < c.BatchSize-1 {
		return ErrInvalidScanConfig
	}
	return nil
}

// Scanner looks for the lowest index followed by a run of GapSize addresses
// without utxos.
type Scanner struct {
	cache  *Cache
	chain  chain.Chain
	config ScanConfig
	labels prometheus.Labels
}

func NewScanner(cache *Cache, c chain.Chain, config ScanConfig) (*Scanner, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Scanner{cache, c, config, chainLabels(c)}, nil
}

// Find returns the lowest index k >= start such that none of the addresses
// of [k, k+GapSize) owns utxos.
//
// Addresses are looked up in batches of BatchSize. Consecutive batches
// overlap by GapSize so that a gap across two batches is never missed. The
// last batch is clamped to end at MaxIndex, and ErrNoGapFound is returned if
// no gap ends at or below MaxIndex.
func (s *Scanner) Find(ctx context.Context, start uint32) (uint32, error) {
	defer prometheus.NewTimer(scanDuration.With(s.labels)).ObserveDuration()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	step := s.config.BatchSize - s.config.GapSize
	lastWindow := s.config.MaxIndex + 1 - s.config.GapSize
	if start > lastWindow {
		return 0, ErrNoGapFound
	}

	pending := s.fetchBatch(ctx, s.batchStart(start))
	for {
		batchStart := s.batchStart(start)
		isLast := batchStart == s.tailStart()

		var next *pendingBatch
		if s.config.Prefetch && !isLast {
			next = s.fetchBatch(ctx, s.batchStart(start+step))
		}

		used, err := pending.wait()
		if err != nil {
			return 0, err
		}

		// windows of [start, start+step) are evaluated, or all the remaining
		// ones up to the last that fits below MaxIndex for the last batch.
		from, to := start-batchStart, start-batchStart+step
		if isLast {
			to = step + 1
		}
		if i, ok := s.findGap(used, from, to); ok {
			log.WithFields(log.Fields{
				"chain":   s.chain.Kind(),
				"network": s.chain.Network(),
				"index":   batchStart + i,
			}).Debug("found gap of unused addresses")
			return batchStart + i, nil
		}
		if isLast {
			return 0, ErrNoGapFound
		}

		start += step
		if next == nil {
			next = s.fetchBatch(ctx, s.batchStart(start))
		}
		pending = next
	}
}

// findGap returns the offset of the first window start in [from, to) whose
// GapSize addresses are all unused.
func (s *Scanner) findGap(used []bool, from, to uint32) (uint32, bool) {
	gapSize := s.config.GapSize
	for i := from; i < to; i++ {
		gap := uint32(0)
		for n := uint32(0); n < gapSize; n++ {
			if used[i+n] {
				break
			}
			gap++
		}
		if gap == gapSize {
			return i, true
		}
	}
	return 0, false
}

// batchStart returns the first index of the batch looked up to evaluate the
// windows starting at the given index.
func (s *Scanner) batchStart(start uint32) uint32 {
	if tail := s.tailStart(); start > tail {
		return tail
	}
	return start
}

// tailStart returns the first index of the batch that ends at MaxIndex.
func (s *Scanner) tailStart() uint32 {
	return s.config.MaxIndex + 1 - s.config.BatchSize
}

type pendingBatch struct {
	eg   errgroup.Group
	used []bool
}

func (p *pendingBatch) wait() ([]bool, error) {
	if err := p.eg.Wait(); err != nil {
		return nil, err
	}
	return p.used, nil
}

// fetchBatch derives and looks up the addresses of [start, start+BatchSize)
// in background and returns the handle to wait for the usage of each of them.
func (s *Scanner) fetchBatch(ctx context.Context, start uint32) *pendingBatch {
	p := &pendingBatch{}
	p.eg.Go(func() error {
		used, err := s.lookupBatch(ctx, start)
		if err != nil {
			return err
		}
		p.used = used
		return nil
	})
	return p
}

func (s *Scanner) lookupBatch(ctx context.Context, start uint32) ([]bool, error) {
	begin := time.Now()
	addresses, err := s.cache.AddressRange(start, start+s.config.BatchSize)
	if err != nil {
		return nil, err
	}
	fingerprints := make([][]byte, 0, len(addresses))
	for _, addr := range addresses {
		fingerprint, err := s.chain.Fingerprint(addr)
		if err != nil {
			return nil, wrapError(ErrDerivation, err)
		}
		fingerprints = append(fingerprints, fingerprint)
	}

	utxos, err := s.chain.QueryUtxos(ctx, addresses)
	if err != nil {
		// a cancelled context is not a failure of the explorer
		if ctx.Err() == nil {
			lookupFailures.With(s.labels).Inc()
		}
		return nil, wrapError(ErrLookup, err)
	}
	scanBatches.With(s.labels).Inc()

	used := make([]bool, len(fingerprints))
	for i, fingerprint := range fingerprints {
		used[i] = utxos.IsOwned(fingerprint)
	}

	log.WithFields(log.Fields{
		"chain":   s.chain.Kind(),
		"network": s.chain.Network(),
		"from":    start,
		"to":      start + s.config.BatchSize - 1,
		"utxos":   utxos.Len(),
		"elapsed": time.Since(begin),
	}).Debug("scanned batch of addresses")
	return used, nil
}
