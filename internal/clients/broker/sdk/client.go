// Package sdk is the low-level HTTP client for the broker REST API.
package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aristath/folio/internal/metrics"
	"github.com/rs/zerolog"
)

const (
	defaultRateLimit = 250 * time.Millisecond
	requestQueueSize = 100
	userAgent        = "folio/1.0"
)

// APIError is returned for any non-2xx response
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("broker API %s returned status %d", e.Endpoint, e.StatusCode)
}

// requestJob represents a job in the rate limiting queue
type requestJob struct {
	ctx      context.Context
	method   string
	url      string
	form     url.Values
	token    string
	endpoint string // metrics and log label
	resultCh chan requestResult
}

// requestResult represents the result of a request
type requestResult struct {
	data interface{}
	err  error
}

// Options configures a Client
type Options struct {
	BaseURL   string
	ClientID  string
	RateLimit time.Duration // Minimum spacing between requests
	Timeout   time.Duration // Hard upper bound per HTTP request
	Metrics   *metrics.Metrics
}

// Client sends broker API requests one at a time through a rate limited queue
type Client struct {
	baseURL      string
	clientID     string
	rateLimit    time.Duration
	httpClient   *http.Client
	metrics      *metrics.Metrics
	log          zerolog.Logger
	requestQueue chan requestJob
	stopChan     chan struct{}
	workerDone   chan struct{}
	once         sync.Once
}

// NewClient creates a new broker SDK client and starts its worker
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.RateLimit <= 0 {
		opts.RateLimit = defaultRateLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:      strings.TrimRight(opts.BaseURL, "/"),
		clientID:     opts.ClientID,
		rateLimit:    opts.RateLimit,
		httpClient:   &http.Client{Timeout: opts.Timeout},
		metrics:      opts.Metrics,
		log:          log.With().Str("component", "broker-sdk").Logger(),
		requestQueue: make(chan requestJob, requestQueueSize),
		stopChan:     make(chan struct{}),
		workerDone:   make(chan struct{}),
	}

	go c.worker()

	return c
}

// BaseURL returns the API root without trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// enqueue submits a job and waits for its result or for ctx to end
func (c *Client) enqueue(job requestJob) (interface{}, error) {
	job.resultCh = make(chan requestResult, 1)

	select {
	case <-c.stopChan:
		return nil, fmt.Errorf("client is closed")
	default:
	}

	select {
	case c.requestQueue <- job:
	case <-c.stopChan:
		return nil, fmt.Errorf("client is closed")
	case <-job.ctx.Done():
		return nil, job.ctx.Err()
	default:
		return nil, fmt.Errorf("request queue is full")
	}

	select {
	case result := <-job.resultCh:
		return result.data, result.err
	case <-job.ctx.Done():
		return nil, job.ctx.Err()
	case <-c.workerDone:
		// Worker may have answered during the final drain
		select {
		case result := <-job.resultCh:
			return result.data, result.err
		default:
			return nil, fmt.Errorf("client is closed")
		}
	}
}

// worker processes requests from the queue sequentially with rate limiting
func (c *Client) worker() {
	defer close(c.workerDone)

	var lastRequestTime time.Time

	processJob := func(job requestJob) {
		// Caller already gave up, don't spend a request on it
		if err := job.ctx.Err(); err != nil {
			job.resultCh <- requestResult{err: err}
			return
		}

		if !lastRequestTime.IsZero() {
			if wait := c.rateLimit - time.Since(lastRequestTime); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-job.ctx.Done():
					timer.Stop()
					job.resultCh <- requestResult{err: job.ctx.Err()}
					return
				}
			}
		}

		var result requestResult
		result.data, result.err = c.execute(job)
		lastRequestTime = time.Now()

		job.resultCh <- result
	}

	for {
		select {
		case <-c.stopChan:
			// Drain remaining jobs from queue before exiting
			for {
				select {
				case job := <-c.requestQueue:
					processJob(job)
				default:
					return
				}
			}
		case job := <-c.requestQueue:
			processJob(job)
		}
	}
}

// Close gracefully shuts down the rate limiting worker
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.stopChan)
		<-c.workerDone
	})
}

// execute performs one HTTP round trip and decodes the JSON body
func (c *Client) execute(job requestJob) (interface{}, error) {
	start := time.Now()

	var body io.Reader
	if job.form != nil {
		body = strings.NewReader(job.form.Encode())
	}

	req, err := http.NewRequestWithContext(job.ctx, job.method, job.url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if job.form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if job.token != "" {
		req.Header.Set("Authorization", "Bearer "+job.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.BrokerRequest(job.endpoint, "error", time.Since(start))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.BrokerRequest(job.endpoint, statusClass(resp.StatusCode), time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyStr := truncate(string(raw))
		c.log.Error().
			Int("status_code", resp.StatusCode).
			Str("endpoint", job.endpoint).
			Str("response_body", bodyStr).
			Msg("API returned non-2xx status")
		return nil, &APIError{StatusCode: resp.StatusCode, Endpoint: job.endpoint, Body: bodyStr}
	}

	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]interface{}{}, nil
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		c.log.Error().
			Err(err).
			Str("endpoint", job.endpoint).
			Str("response_body", truncate(string(raw))).
			Msg("Failed to parse JSON response")
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	c.log.Debug().
		Str("endpoint", job.endpoint).
		Dur("duration", time.Since(start)).
		Msg("Broker request completed")

	return result, nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}

func truncate(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
