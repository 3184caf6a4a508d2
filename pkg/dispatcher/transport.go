package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// IHttpTransport posts one JSON request to one node and returns the raw JSON
// response body. Implementations must honour ctx cancellation.
type IHttpTransport interface {
	Post(ctx context.Context, url string, body any, requestId string) (json.RawMessage, error)
}

// HttpTransportConfig holds the configuration for the default transport.
type HttpTransportConfig struct {
	// RequestTimeout bounds a single node request end to end
	RequestTimeout time.Duration
}

// HttpTransport is the default IHttpTransport over net/http.
type HttpTransport struct {
	logger *zap.Logger
	client *http.Client
}

// NewHttpTransport creates the default JSON transport.
func NewHttpTransport(cfg *HttpTransportConfig, logger *zap.Logger) *HttpTransport {
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &HttpTransport{
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

func (t *HttpTransport) Post(ctx context.Context, url string, body any, requestId string) (json.RawMessage, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestId)

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", url, err)
	}

	t.logger.Sugar().Debugw("node_request",
		zap.String("url", url),
		zap.String("requestId", requestId),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("node %s returned status %d: %s", url, resp.StatusCode, truncate(payload, 256))
	}
	return json.RawMessage(payload), nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
