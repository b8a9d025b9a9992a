// Package ocr is an HTTP client for an asynchronous document-analysis
// service (Azure Document Intelligence "analyze" API).
package ocr

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

	"github.com/sony/gobreaker"

	"github.com/dvloznov/receipt-ledger/internal/extractor"
	"github.com/dvloznov/receipt-ledger/internal/logger"
)

// Defaults for Config.
const (
	DefaultModel      = "prebuilt-receipt"
	DefaultAPIVersion = "2023-07-31"
)

const subscriptionKeyHeader = "Ocp-Apim-Subscription-Key"

// Config holds the connection settings of the analysis service.
type Config struct {
	Endpoint   string
	APIKey     string
	Model      string
	APIVersion string
}

// Client submits images for analysis and polls the resulting operations.
// All calls go through a circuit breaker so a failing service is not
// hammered by every incoming upload.
type Client struct {
	httpClient *http.Client
	cfg        Config
	cb         *gobreaker.CircuitBreaker
}

// NewClient creates a Client. A nil httpClient uses a client with a 30s timeout.
func NewClient(httpClient *http.Client, cfg Config, cb *gobreaker.CircuitBreaker) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cb == nil {
		cb = NewCircuitBreaker("ocr")
	}
	return &Client{httpClient: httpClient, cfg: cfg, cb: cb}
}

// NewCircuitBreaker creates a breaker that opens when most recent calls fail.
func NewCircuitBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})
}

// Submit posts an image and returns the Operation-Location URL to poll.
func (c *Client) Submit(ctx context.Context, image []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	endpoint := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s",
		c.cfg.Endpoint, url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIVersion))

	result, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
		if err != nil {
			return nil, err
		}
		req.Header.Set(subscriptionKeyHeader, c.cfg.APIKey)
		req.Header.Set("Content-Type", contentType)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusAccepted {
			return nil, statusError(resp)
		}
		location := resp.Header.Get("Operation-Location")
		if location == "" {
			return nil, errors.New("response has no Operation-Location header")
		}
		return location, nil
	})
	if err != nil {
		return "", fmt.Errorf("ocr.Submit: %w", err)
	}
	return result.(string), nil
}

// analyzeResponse is the subset of the operation payload we read.
type analyzeResponse struct {
	Status        string `json:"status"`
	AnalyzeResult struct {
		Content string `json:"content"`
	} `json:"analyzeResult"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// transientStatusError is a 5xx poll response. It counts against the
// breaker but leaves the operation pending.
type transientStatusError struct{ err error }

func (e *transientStatusError) Error() string { return e.err.Error() }
func (e *transientStatusError) Unwrap() error { return e.err }

// pollResult carries a decoded operation, or marks a throttled poll.
type pollResult struct {
	body      analyzeResponse
	throttled bool
}

// Poll fetches the operation state. Throttled (429) and server error (5xx)
// responses leave the operation pending so the caller keeps polling within
// its attempt bound; any other non-200 response is an error.
func (c *Client) Poll(ctx context.Context, handle string) (extractor.OCRStatus, error) {
	result, err := c.cb.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, handle, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(subscriptionKeyHeader, c.cfg.APIKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return pollResult{throttled: true}, nil
		case resp.StatusCode >= http.StatusInternalServerError:
			return nil, &transientStatusError{err: statusError(resp)}
		case resp.StatusCode != http.StatusOK:
			return nil, statusError(resp)
		}

		var body analyzeResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("decoding operation: %w", err)
		}
		return pollResult{body: body}, nil
	})
	var transient *transientStatusError
	if errors.As(err, &transient) {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("Analysis service error while polling, treating operation as pending")
		return extractor.OCRStatus{State: extractor.OCRPending}, nil
	}
	if err != nil {
		return extractor.OCRStatus{}, fmt.Errorf("ocr.Poll: %w", err)
	}

	res := result.(pollResult)
	if res.throttled {
		return extractor.OCRStatus{State: extractor.OCRPending}, nil
	}
	switch strings.ToLower(res.body.Status) {
	case "succeeded":
		return extractor.OCRStatus{State: extractor.OCRDone, Text: res.body.AnalyzeResult.Content}, nil
	case "failed", "canceled":
		return extractor.OCRStatus{State: extractor.OCRFailed}, nil
	default:
		return extractor.OCRStatus{State: extractor.OCRPending}, nil
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("analysis service returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
