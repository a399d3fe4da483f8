package crawler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	New       Status = "NEW"
	Waiting   Status = "WAITING"
	Processed Status = "PROCESSED"
)

type Status string

type observableStatus struct {
	sync.RWMutex
	status Status
}

func NewObservableStatus() *observableStatus {
	return &observableStatus{
		status: New,
	}
}

func (o *observableStatus) Get() Status {
	o.RLock()
	defer o.RUnlock()
	return o.status
}

func (o *observableStatus) Set(status Status) {
	o.Lock()
	defer o.Unlock()
	o.status = status
}

// Resyncer is an address space that can be scanned again for new activity.
type Resyncer interface {
	ID() uuid.UUID
	Resync(ctx context.Context) error
	CurrentIndex() (uint32, error)
}

// ResyncObservable periodically resyncs an address space and reports whether
// its current index moved.
type ResyncObservable struct {
	Resyncer Resyncer
	// Timeout bounds every resync, no timeout if zero.
	Timeout time.Duration
}

func NewResyncObservable(
	resyncer Resyncer, timeout time.Duration,
) Observable {
	return &ResyncObservable{resyncer, timeout}
}

func (r *ResyncObservable) observe(
	errChan chan error,
	eventChan chan Event,
	observableStatus *observableStatus,
	rateLimiter *rate.Limiter,
) {
	if r == nil {
		return
	}

	observableStatus.Set(Waiting)
	defer observableStatus.Set(Processed)

	ctx := context.Background()
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if err := rateLimiter.Wait(ctx); err != nil {
		errChan <- err
		return
	}

	// an uninitialized address space starts from index 0
	previous, _ := r.Resyncer.CurrentIndex()
	if err := r.Resyncer.Resync(ctx); err != nil {
		errChan <- err
		return
	}
	current, err := r.Resyncer.CurrentIndex()
	if err != nil {
		errChan <- err
		return
	}

	eventType := IndexUnchanged
	if current != previous {
		eventType = IndexAdvanced
	}
	eventChan <- IndexEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Key:       r.key(),
		Previous:  previous,
		Current:   current,
	}
}

func (r *ResyncObservable) key() string {
	return r.Resyncer.ID().String()
}

type observableHandler struct {
	observable       Observable
	wg               *sync.WaitGroup
	ticker           *time.Ticker
	eventChan        chan Event
	errChan          chan error
	stopChan         chan int
	observableStatus *observableStatus
	rateLimiter      *rate.Limiter
}

func newObservableHandler(
	observable Observable,
	wg *sync.WaitGroup,
	interval time.Duration,
	eventChan chan Event,
	errChan chan error,
	rateLimiter *rate.Limiter,
) *observableHandler {
	ticker := time.NewTicker(interval)
	stopChan := make(chan int, 1)

	return &observableHandler{
		observable,
		wg,
		ticker,
		eventChan,
		errChan,
		stopChan,
		NewObservableStatus(),
		rateLimiter,
	}
}

func (oh *observableHandler) start() {
	oh.logAction("start")
	defer oh.wg.Done()
	for {
		select {
		case <-oh.ticker.C:
			if oh.observableStatus.Get() != Waiting {
				oh.observable.observe(
					oh.errChan,
					oh.eventChan,
					oh.observableStatus,
					oh.rateLimiter,
				)
			}
		case <-oh.stopChan:
			oh.ticker.Stop()
			return
		}
	}
}

func (oh *observableHandler) stop() {
	oh.logAction("stop")
	oh.stopChan <- 1
}

func (oh *observableHandler) logAction(action string) {
	log.Debugf("%s observing address space: %v", action, oh.observable.key())
}
