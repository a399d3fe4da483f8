package esplora

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"github.com/tdex-network/hdscan/pkg/circuitbreaker"
	"github.com/tdex-network/hdscan/pkg/explorer"
	"go.uber.org/ratelimit"
)

const (
	defaultRequestTimeout        = 15 * time.Second
	defaultRequestsPerSecond     = 10
	defaultMaxConcurrentRequests = 5
)

var (
	// ErrNullURL ...
	ErrNullURL = errors.New("explorer url must not be null")
	// ErrMalformedURL ...
	ErrMalformedURL = errors.New(
		"explorer url must start with http:// or https://",
	)
	// ErrUnexpectedStatus is returned when the explorer replies with a non
	// 200 status code. The status and the body of the reply are appended.
	ErrUnexpectedStatus = errors.New("unexpected explorer response")
)

// NewServiceOpts is the struct given to NewService. Zero values of the
// optional fields are replaced with defaults.
type NewServiceOpts struct {
	APIURL                string
	RequestTimeout        time.Duration
	RequestsPerSecond     int
	MaxConcurrentRequests int
}

func (o NewServiceOpts) validate() error {
	if len(o.APIURL) <= 0 {
		return ErrNullURL
	}
	if !strings.HasPrefix(o.APIURL, "http://") &&
		!strings.HasPrefix(o.APIURL, "https://") {
		return ErrMalformedURL
	}
	return nil
}

type esplora struct {
	apiURL         string
	client         *client
	cb             *gobreaker.CircuitBreaker
	limiter        ratelimit.Limiter
	maxConcurrency int
}

// NewService returns a new esplora service as an explorer.Service interface
func NewService(opts NewServiceOpts) (explorer.Service, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = defaultRequestsPerSecond
	}
	if opts.MaxConcurrentRequests <= 0 {
		opts.MaxConcurrentRequests = defaultMaxConcurrentRequests
	}

	service := &esplora{
		apiURL:         strings.TrimSuffix(opts.APIURL, "/"),
		client:         newHTTPClient(opts.RequestTimeout),
		cb:             circuitbreaker.NewCircuitBreaker("explorer"),
		limiter:        ratelimit.New(opts.RequestsPerSecond),
		maxConcurrency: opts.MaxConcurrentRequests,
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.RequestTimeout)
	defer cancel()
	if _, err := service.GetBlockHeight(ctx); err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}

	return service, nil
}

func (e *esplora) GetBlockHeight(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/blocks/tip/height", e.apiURL)
	resp, err := e.get(ctx, url)
	if err != nil {
		return -1, err
	}

	height, err := strconv.Atoi(strings.TrimSpace(string(resp)))
	if err != nil {
		return -1, fmt.Errorf("invalid block height: %w", err)
	}
	return height, nil
}

// get makes a rate limited GET request through the circuit breaker and
// returns the body of the reply in case of success.
func (e *esplora) get(ctx context.Context, url string) ([]byte, error) {
	e.limiter.Take()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := e.cb.Execute(func() (interface{}, error) {
		status, resp, err := e.client.get(ctx, url)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf(
				"%w: status %d: %s", ErrUnexpectedStatus, status,
				strings.TrimSpace(string(resp)),
			)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	return resp.([]byte), nil
}
