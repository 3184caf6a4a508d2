// Package dispatcher fans a request out to every connected node, waits for a
// quorum of responses, and retries whole batches within a configurable
// tolerance. Callers provide a per-URL body builder; the dispatcher owns
// concurrency, timeouts, request ids and error aggregation.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DispatcherConfig holds the configuration for batch dispatch.
type DispatcherConfig struct {
	// NodeRequestTimeout bounds each individual node promise
	NodeRequestTimeout time.Duration
	// QuorumDeadline bounds a whole batch attempt
	QuorumDeadline time.Duration
	// RetryTolerance is the number of whole-batch retries after the first
	// attempt fails; zero disables retries
	RetryTolerance uint
	// RetryDelay is the base delay between attempts (backoff doubles it)
	RetryDelay time.Duration
}

func (c *DispatcherConfig) withDefaults() DispatcherConfig {
	out := *c
	if out.NodeRequestTimeout == 0 {
		out.NodeRequestTimeout = 60 * time.Second
	}
	if out.QuorumDeadline == 0 {
		out.QuorumDeadline = 2 * time.Minute
	}
	if out.RetryDelay == 0 {
		out.RetryDelay = time.Second
	}
	return out
}

// RequestBuilder produces the endpoint URL and JSON body for one node.
// Returning an error aborts the batch synchronously before any network I/O.
type RequestBuilder func(url string) (endpoint string, body any, err error)

// NodeResponse is the outcome of one node promise.
type NodeResponse struct {
	Url string
	Raw json.RawMessage
	Err error
}

// BatchResult is a successful quorum collection.
type BatchResult struct {
	// RequestId is the stable id propagated to every node of the batch
	RequestId string
	// Responses holds one entry per node that answered successfully
	Responses []NodeResponse
}

// Values returns the raw response bodies of the successful nodes.
func (r *BatchResult) Values() []json.RawMessage {
	out := make([]json.RawMessage, 0, len(r.Responses))
	for _, resp := range r.Responses {
		out = append(out, resp.Raw)
	}
	return out
}

// Dispatcher coordinates node fan-out for a fixed set of bootstrap URLs.
type Dispatcher struct {
	config    DispatcherConfig
	logger    *zap.Logger
	transport IHttpTransport
}

// NewDispatcher creates a Dispatcher using the given transport.
func NewDispatcher(cfg *DispatcherConfig, transport IHttpTransport, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		config:    cfg.withDefaults(),
		logger:    logger,
		transport: transport,
	}
}

// NewRequestId returns a fresh batch request id.
func NewRequestId() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// FanOutAndCollect sends one request per URL and succeeds once at least
// minRequired nodes answered. The whole batch is retried up to RetryTolerance
// times; non-final failures are logged and the final failure carries the
// per-node diagnostics and the request id.
func (d *Dispatcher) FanOutAndCollect(
	ctx context.Context,
	urls []string,
	minRequired int,
	requestId string,
	build RequestBuilder,
) (*BatchResult, error) {
	if len(urls) == 0 {
		return nil, literrors.New(literrors.KindInvalidArgumentException, "no connected nodes to dispatch to")
	}
	if minRequired < 1 || minRequired > len(urls) {
		return nil, literrors.New(literrors.KindInvalidArgumentException,
			"quorum threshold %d out of range for %d nodes", minRequired, len(urls))
	}

	attempt := uint(0)
	result, err := retry.DoWithData(
		func() (*BatchResult, error) {
			attempt++
			return d.runBatch(ctx, urls, minRequired, requestId, build)
		},
		retry.Context(ctx),
		retry.Attempts(d.config.RetryTolerance+1),
		retry.Delay(d.config.RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// Parameter-shape failures raised by the builder are final.
			return !errors.Is(err, literrors.ErrInvalidArgumentException) &&
				!errors.Is(err, literrors.ErrWalletSignatureNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			d.logger.Sugar().Warnw("Node batch failed, retrying",
				zap.String("requestId", requestId),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	d.logger.Sugar().Debugw("Node batch succeeded",
		zap.String("requestId", requestId),
		zap.Uint("attempts", attempt),
		zap.Int("responses", len(result.Responses)),
	)
	return result, nil
}

// runBatch performs one fan-out attempt. The whole batch is awaited (each
// node promise bounded by its own timeout, the batch by the quorum deadline)
// and then classified: success iff at least minRequired nodes answered.
// Waiting for stragglers keeps every collectable share available to the
// combiner and matches the error-propagation contract: per-node diagnostics
// surface only after the batch completes.
func (d *Dispatcher) runBatch(
	ctx context.Context,
	urls []string,
	minRequired int,
	requestId string,
	build RequestBuilder,
) (*BatchResult, error) {
	batchCtx, cancel := context.WithTimeout(ctx, d.config.QuorumDeadline)
	defer cancel()

	// Build every body up front so shape errors surface before network I/O.
	type nodeRequest struct {
		url      string
		endpoint string
		body     any
	}
	requests := make([]nodeRequest, 0, len(urls))
	for _, url := range urls {
		endpoint, body, err := build(url)
		if err != nil {
			return nil, err
		}
		requests = append(requests, nodeRequest{url: url, endpoint: endpoint, body: body})
	}

	responses := make([]NodeResponse, len(requests))
	group, groupCtx := errgroup.WithContext(batchCtx)
	for i, req := range requests {
		i, req := i, req
		group.Go(func() error {
			nodeCtx, nodeCancel := context.WithTimeout(groupCtx, d.config.NodeRequestTimeout)
			defer nodeCancel()
			raw, err := d.transport.Post(nodeCtx, req.endpoint, req.body, requestId)
			responses[i] = NodeResponse{Url: req.url, Raw: raw, Err: err}
			return nil
		})
	}
	_ = group.Wait()

	var successes []NodeResponse
	var failures []NodeResponse
	for _, resp := range responses {
		if resp.Err != nil {
			failures = append(failures, resp)
		} else {
			successes = append(successes, resp)
		}
	}
	if len(successes) >= minRequired {
		return &BatchResult{RequestId: requestId, Responses: successes}, nil
	}
	return nil, d.batchError(requestId, successes, failures)
}

func (d *Dispatcher) batchError(requestId string, successes, failures []NodeResponse) error {
	diagnostics := make([]string, 0, len(failures))
	for _, failure := range failures {
		diagnostics = append(diagnostics, fmt.Sprintf("%s: %v", failure.Url, failure.Err))
	}
	return literrors.New(literrors.KindNodeRequestFailed,
		"quorum not reached: %d ok, %d failed [%s]",
		len(successes), len(failures), strings.Join(diagnostics, "; "),
	).WithRequestID(requestId)
}
