// Package httpapi is the REST client of the storefront backend.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nikolayk812/storefront-checkout/internal/domain"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Currency currency.Unit

	// RetryInterval is the wait before the single retry of a read.
	RetryInterval time.Duration
	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type Client struct {
	baseURL       *url.URL
	http          *http.Client
	timeout       time.Duration
	currency      currency.Unit
	retryInterval time.Duration
	breaker       *gobreaker.CircuitBreaker[response]
	logger        *zap.Logger
}

type response struct {
	status int
	body   []byte
}

func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("url.Parse[%s]: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 200 * time.Millisecond
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}
	if cfg.Currency == (currency.Unit{}) {
		cfg.Currency = currency.USD
	}

	c := &Client{
		baseURL:       base,
		http:          httpClient,
		timeout:       cfg.Timeout,
		currency:      cfg.Currency,
		retryInterval: cfg.RetryInterval,
		logger:        logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:    "storefront-backend",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	return c, nil
}

// get is an idempotent read, retried once on network errors.
func (c *Client) get(ctx context.Context, id domain.Identity, path string, out any) error {
	op := opName(http.MethodGet, path)

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), 1), ctx)

	err := backoff.RetryNotify(func() error {
		err := c.do(ctx, id, http.MethodGet, path, nil, out)
		if err != nil && !domain.IsNetwork(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		c.logger.Info("retrying read", zap.String("op", op), zap.Duration("wait", wait), zap.Error(err))
	})
	return err
}

// send is a mutating call and is never retried.
func (c *Client) send(ctx context.Context, id domain.Identity, method, path string, in, out any) error {
	return c.do(ctx, id, method, path, in, out)
}

func (c *Client) do(ctx context.Context, id domain.Identity, method, path string, in, out any) error {
	op := opName(method, path)

	if id.Token == "" {
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	}

	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("json.Marshal: %w", err)
		}
	}

	resp, err := c.breaker.Execute(func() (response, error) {
		return c.roundTrip(ctx, id, method, path, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return &domain.NetworkError{Op: op, Err: err}
		}
		return err
	}

	if err := statusError(op, resp); err != nil {
		return err
	}

	if out == nil || len(resp.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%s: json.Unmarshal: %w", op, err)
	}
	return nil
}

// roundTrip reports transport failures and 5xx as NetworkError, which the
// breaker counts. Other statuses pass through as a response.
func (c *Client) roundTrip(ctx context.Context, id domain.Identity, method, path string, payload []byte) (response, error) {
	op := opName(method, path)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.JoinPath(path).String()+"/", body)
	if err != nil {
		return response{}, fmt.Errorf("http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Authorization", "Token "+string(id.Token))
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return response{}, &domain.NetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return response{}, &domain.NetworkError{Op: op, Err: err}
	}

	if res.StatusCode >= http.StatusInternalServerError {
		return response{}, &domain.NetworkError{Op: op, Err: fmt.Errorf("status %d", res.StatusCode)}
	}

	return response{status: res.StatusCode, body: data}, nil
}

// opName renders a call as "GET /cart/" for errors and logs.
func opName(method, path string) string {
	return method + " /" + path + "/"
}

func statusError(op string, resp response) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, domain.ErrUnauthenticated)
	case resp.status == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	case resp.status == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, domain.ErrOutOfStock)
	case resp.status == http.StatusBadRequest:
		return validationError(resp.body)
	default:
		return fmt.Errorf("%s: unexpected status %d", op, resp.status)
	}
}

// validationError reads field errors shaped {"field": ["reason"]} or
// {"field": "reason"}.
func validationError(body []byte) error {
	vErr := domain.NewValidationError()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		for name, raw := range fields {
			var reason string
			if json.Unmarshal(raw, &reason) == nil {
				vErr.Add(name, reason)
				continue
			}
			var reasons []string
			if json.Unmarshal(raw, &reasons) == nil && len(reasons) > 0 {
				vErr.Add(name, reasons[0])
			}
		}
	}

	if vErr.Empty() {
		vErr.Add("request", "bad request")
	}
	return vErr
}
