package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	"go.uber.org/zap"
)

const maxBackoff = 5 * time.Second

// errServerStatus marks a 5xx answer that survived every retry.
var errServerStatus = errors.New("server error")

// remoteClient is the transport shared by the collaborator clients: a pooled
// http.Client plus a bounded retry loop for transport failures and 5xx answers.
type remoteClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

type remoteResponse struct {
	StatusCode int
	Body       []byte
}

func newRemoteClient(name string, cfg *config.RemoteService) *remoteClient {
	// Create HTTP transport with connection pooling
	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.IdleConnTimeout) * time.Second,
		ForceAttemptHTTP2:   true,
	}

	return &remoteClient{
		name:    name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   cfg.Timeout(),
			Transport: transport,
		},
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff(),
	}
}

func (c *remoteClient) endpoint(path string, query url.Values) string {
	return c.baseURL + "/" + strings.TrimLeft(path, "/") + "?" + query.Encode()
}

// do sends the request, retrying transport errors and 5xx responses up to
// maxRetries times. Any response below 500 is returned to the caller as is.
func (c *remoteClient) do(ctx context.Context, method, target string) (*remoteResponse, error) {
	backoff := c.backoff
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("Retrying remote call",
				zap.String("service", c.name),
				zap.String("method", method),
				zap.String("url", target),
				zap.Int("attempt", attempt),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: %w (last error: %v)", c.name, ctx.Err(), lastErr)
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		resp, err := c.once(ctx, method, target)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("%w (status %d): %s", errServerStatus, resp.StatusCode, strings.TrimSpace(string(resp.Body)))
			continue
		}
		return resp, nil
	}

	logger.Warn("Remote call failed",
		zap.String("service", c.name),
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("attempts", c.maxRetries+1),
		zap.Error(lastErr),
	)
	return nil, fmt.Errorf("%s %s %s: %w", c.name, method, target, lastErr)
}

func (c *remoteClient) once(ctx context.Context, method, target string) (*remoteResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &remoteResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
