package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/warp/landed-cost/tariff"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Error codes a quoting service may return in its error body.
const (
	CodeRateNotFound = "rate_not_found"
)

// HTTPOptions configures the HTTP oracle.
type HTTPOptions struct {
	// Timeout bounds each request. Zero means 10s.
	Timeout time.Duration
	// RPS and Burst throttle outgoing requests. RPS <= 0 disables throttling.
	RPS   float64
	Burst int

	Client *http.Client
	Logger *zap.Logger
}

// HTTP is a RateOracle that asks a remote quoting service.
//
//	POST {base}/quote   body: tariff.QuoteRequest as JSON
//	200                 body: tariff.RateQuoteResult as JSON
//	404 or error body   {"error": {"code": "rate_not_found", "message": "..."}}
type HTTP struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	logger   *zap.Logger
}

var _ tariff.RateOracle = (*HTTP)(nil)

func NewHTTP(baseURL string, opts HTTPOptions) *HTTP {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if opts.RPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), burst)
	}

	return &HTTP{
		endpoint: strings.TrimRight(baseURL, "/") + "/quote",
		client:   client,
		limiter:  limiter,
		timeout:  timeout,
		logger:   logger,
	}
}

type errorEnvelope struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Quote posts the request and decodes the result.
func (h *HTTP) Quote(ctx context.Context, req tariff.QuoteRequest) (*tariff.RateQuoteResult, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: throttled: %v", tariff.ErrTransport, err)
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tariff.ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.logger.Debug("quote request failed",
			zap.String("endpoint", h.endpoint),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", tariff.ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %v", tariff.ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, body)
	}

	// Some services answer 200 with an error body.
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return nil, codeError(envelope.Error.Code, envelope.Error.Message)
	}

	var result tariff.RateQuoteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", tariff.ErrTransport, err)
	}
	// The service may omit the echoed request.
	if result.Request.ImporterCode == "" {
		result.Request = req
	}
	return &result, nil
}

func statusError(status int, body []byte) error {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		if status == http.StatusNotFound && envelope.Error.Code == "" {
			return fmt.Errorf("%w: %s", tariff.ErrRateNotFound, envelope.Error.Message)
		}
		return codeError(envelope.Error.Code, envelope.Error.Message)
	}
	if status == http.StatusNotFound {
		return tariff.ErrRateNotFound
	}
	return fmt.Errorf("%w: status %d: %s", tariff.ErrTransport, status, truncate(string(body), 200))
}

func codeError(code, message string) error {
	switch code {
	case CodeRateNotFound:
		return fmt.Errorf("%w: %s", tariff.ErrRateNotFound, message)
	default:
		return fmt.Errorf("%w: %s: %s", tariff.ErrTransport, code, message)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

