package network

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tickstream/src/helpers"
	"tickstream/src/logger"
	"tickstream/src/models"

	"golang.org/x/time/rate"
)

// -----------------------------------------------------------------------------

// AsyncNetworkManager performs broker REST calls with a shared rate limiter,
// bounded retries and exponential backoff. Callers bound the total call time
// (retries included) through the context.
type AsyncNetworkManager struct {
	Config  *models.MConfig
	Client  *http.Client
	Logger  *logger.Logger
	limiter *rate.Limiter
}

// -----------------------------------------------------------------------------

func NewAsyncNetworkManager(cfg *models.MConfig, log *logger.Logger) *AsyncNetworkManager {
	return &AsyncNetworkManager{
		Config: cfg,
		Logger: log,
		Client: &http.Client{
			Timeout: time.Duration(cfg.Broker.RequestTimeout) * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.Broker.RateLimitPerSec), cfg.Broker.RateLimitPerSec),
	}
}

// -----------------------------------------------------------------------------

// Get performs a GET request with retries.
func (nm *AsyncNetworkManager) Get(ctx context.Context, urlStr string, params map[string]string, headers map[string]string) ([]byte, error) {
	reqUrl, err := url.Parse(urlStr)
	if err != nil {
		return nil, err
	}

	q := reqUrl.Query()
	for k, v := range params {
		q.Add(k, v)
	}
	reqUrl.RawQuery = q.Encode()

	return nm.do(ctx, "GET", reqUrl.String(), "", headers)
}

// -----------------------------------------------------------------------------

// PostForm performs a form-encoded POST request with retries.
func (nm *AsyncNetworkManager) PostForm(ctx context.Context, urlStr string, form map[string]string, headers map[string]string) ([]byte, error) {
	values := url.Values{}
	for k, v := range form {
		values.Set(k, v)
	}
	return nm.do(ctx, "POST", urlStr, values.Encode(), headers)
}

// -----------------------------------------------------------------------------

func (nm *AsyncNetworkManager) do(ctx context.Context, method, finalUrl, body string, headers map[string]string) ([]byte, error) {
	maxRetries := nm.Config.Broker.MaxRetries
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			// Exponential backoff, abandoned as soon as the caller gives up.
			select {
			case <-time.After(time.Duration(i*i) * time.Second):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		// Respect the broker's rate limits across all callers.
		if err := nm.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, finalUrl, reader)
		if err != nil {
			return nil, err
		}
		if body != "" {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := nm.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			nm.Logger.Info("Request failed (attempt %d/%d): %v", i+1, maxRetries+1, err)
			continue
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		// Auth failures must surface immediately; retrying cannot fix them.
		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
			return respBody, &HTTPError{Status: resp.StatusCode, Body: respBody}
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (status %d)", resp.StatusCode)
			nm.Logger.Info("Request throttled (%d). Backing off.", resp.StatusCode)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = &HTTPError{Status: resp.StatusCode, Body: respBody}
			nm.Logger.Info("Bad status %d", resp.StatusCode)
			continue
		}

		if readErr != nil {
			lastErr = readErr
			continue
		}

		return respBody, nil
	}

	return nil, &helpers.NetworkError{TickstreamError: helpers.TickstreamError{
		Message: "max retries exceeded",
		Cause:   lastErr,
	}}
}

// -----------------------------------------------------------------------------

// HTTPError carries a non-200 response so callers can inspect the broker's
// error payload (e.g. token-exception detection).
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d", e.Status)
}
