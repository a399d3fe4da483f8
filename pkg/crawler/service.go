package crawler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	eventQueueMaxSize = 100
	errorQueueMaxSize = 10

	defaultInterval          = 10 * time.Second
	defaultRequestsPerSecond = 1
	defaultBurst             = 1
)

type blockchainCrawler struct {
	interval     time.Duration
	errChan      chan error
	eventChan    chan Event
	observables  map[string]*observableHandler
	errorHandler func(err error)
	rateLimiter  *rate.Limiter
	mutex        *sync.RWMutex
	wg           *sync.WaitGroup
}

// Opts defines the parameters needed for creating a crawler service with
// NewService method. Zero values are replaced with defaults.
type Opts struct {
	Interval          time.Duration
	RequestsPerSecond float64
	Burst             int
	ErrorHandler      func(err error)
}

// NewService returns a crawler that is ready to periodically resync the
// address spaces added as observables. Use Start and Stop methods to manage
// it.
func NewService(opts Opts) Service {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	if opts.Burst <= 0 {
		opts.Burst = defaultBurst
	}
	if opts.ErrorHandler == nil {
		opts.ErrorHandler = func(error) {}
	}

	return &blockchainCrawler{
		interval:     opts.Interval,
		errChan:      make(chan error, errorQueueMaxSize),
		eventChan:    make(chan Event, eventQueueMaxSize),
		observables:  map[string]*observableHandler{},
		errorHandler: opts.ErrorHandler,
		rateLimiter:  rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), opts.Burst),
		mutex:        &sync.RWMutex{},
		wg:           &sync.WaitGroup{},
	}
}

// Start dispatches the errors of the observables to the error handler until
// the crawler is stopped. It blocks, so it's meant to be run in its own
// goroutine.
func (bc *blockchainCrawler) Start() {
	for err := range bc.errChan {
		go bc.errorHandler(err)
	}
}

// Stop stops all observables and emits a QuitEvent once they're done.
func (bc *blockchainCrawler) Stop() {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()
	for key, obsHandler := range bc.observables {
		obsHandler.stop()
		delete(bc.observables, key)
	}
	bc.wg.Wait()
	bc.eventChan <- QuitEvent{}
	close(bc.errChan)
}

// GetEventChannel returns Event channel which can be used to "listen" to
// index changes
func (bc *blockchainCrawler) GetEventChannel() chan Event {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()
	return bc.eventChan
}

// AddObservable adds new Observable to the list of Observables to be "watched
// over" only if the same Observable is not already in the list
func (bc *blockchainCrawler) AddObservable(observable Observable) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if _, ok := bc.observables[observable.key()]; !ok {
		obsHandler := newObservableHandler(
			observable,
			bc.wg,
			bc.interval,
			bc.eventChan,
			bc.errChan,
			bc.rateLimiter,
		)

		bc.observables[observable.key()] = obsHandler
		bc.wg.Add(1)
		go obsHandler.start()
	}
}

// RemoveObservable stops "watching" given Observable
func (bc *blockchainCrawler) RemoveObservable(observable Observable) {
	bc.mutex.Lock()
	defer bc.mutex.Unlock()

	if obsHandler, ok := bc.observables[observable.key()]; ok {
		obsHandler.stop()
		delete(bc.observables, observable.key())
	}
}

// IsObserving returns whether the crawler is observing the given observable.
func (bc *blockchainCrawler) IsObserving(observable Observable) bool {
	bc.mutex.RLock()
	defer bc.mutex.RUnlock()

	_, ok := bc.observables[observable.key()]
	return ok
}
