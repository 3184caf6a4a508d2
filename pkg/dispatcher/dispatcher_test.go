package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lit-protocol/lit-go-sdk/pkg/literrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDispatcher(cfg *DispatcherConfig) *Dispatcher {
	logger := zap.NewNop()
	return NewDispatcher(cfg, NewHttpTransport(&HttpTransportConfig{RequestTimeout: 5 * time.Second}, logger), logger)
}

func okNode(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(server.Close)
	return server
}

func failingNode(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	t.Cleanup(server.Close)
	return server
}

func passthroughBuilder(url string) (string, any, error) {
	return url + "/web/test", map[string]any{"ping": true}, nil
}

func TestQuorumSuccess(t *testing.T) {
	urls := []string{
		okNode(t, `{"n":1}`).URL,
		okNode(t, `{"n":2}`).URL,
		failingNode(t).URL,
	}
	d := newTestDispatcher(&DispatcherConfig{})

	result, err := d.FanOutAndCollect(context.Background(), urls, 2, NewRequestId(), passthroughBuilder)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(result.Responses), 2)
	assert.NotEmpty(t, result.RequestId)
}

func TestQuorumBelowThresholdSurfacesDiagnostics(t *testing.T) {
	// 5 nodes, quorum 3, only 2 succeed.
	urls := []string{
		okNode(t, `{"n":1}`).URL,
		okNode(t, `{"n":2}`).URL,
		failingNode(t).URL,
		failingNode(t).URL,
		failingNode(t).URL,
	}
	d := newTestDispatcher(&DispatcherConfig{})

	requestId := NewRequestId()
	_, err := d.FanOutAndCollect(context.Background(), urls, 3, requestId, passthroughBuilder)
	require.Error(t, err)
	assert.True(t, errors.Is(err, literrors.ErrNodeRequestFailed))

	var litErr *literrors.Error
	require.True(t, errors.As(err, &litErr))
	assert.Equal(t, requestId, litErr.RequestID)
	assert.Contains(t, litErr.Message, "status 500")
}

func TestRetryToleranceRecoversFlakyBatch(t *testing.T) {
	var calls atomic.Int64
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	t.Cleanup(flaky.Close)

	d := newTestDispatcher(&DispatcherConfig{RetryTolerance: 2, RetryDelay: 10 * time.Millisecond})
	result, err := d.FanOutAndCollect(context.Background(), []string{flaky.URL}, 1, NewRequestId(), passthroughBuilder)
	require.NoError(t, err)
	assert.Len(t, result.Responses, 1)
}

func TestBuilderErrorAbortsSynchronously(t *testing.T) {
	d := newTestDispatcher(&DispatcherConfig{RetryTolerance: 3})
	_, err := d.FanOutAndCollect(context.Background(), []string{"http://127.0.0.1:1"}, 1, NewRequestId(),
		func(url string) (string, any, error) {
			return "", nil, literrors.New(literrors.KindWalletSignatureNotFound, "no session sig for %s", url)
		})
	require.Error(t, err)
	assert.True(t, errors.Is(err, literrors.ErrWalletSignatureNotFound))
}

func TestEmptyUrlListRejected(t *testing.T) {
	d := newTestDispatcher(&DispatcherConfig{})
	_, err := d.FanOutAndCollect(context.Background(), nil, 1, NewRequestId(), passthroughBuilder)
	assert.True(t, errors.Is(err, literrors.ErrInvalidArgumentException))
}

func TestResponsesDecode(t *testing.T) {
	urls := []string{okNode(t, `{"value":42}`).URL}
	d := newTestDispatcher(&DispatcherConfig{})

	result, err := d.FanOutAndCollect(context.Background(), urls, 1, NewRequestId(), passthroughBuilder)
	require.NoError(t, err)

	var decoded struct {
		Value int `json:"value"`
	}
	require.NoError(t, json.Unmarshal(result.Responses[0].Raw, &decoded))
	assert.Equal(t, 42, decoded.Value)
}
