package external

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/hla-metadata-dictionary/internal/domain"
	"github.com/hla-metadata-dictionary/pkg/typing"
)

// MACServiceClient expands ambiguity codes through a remote decoding service.
// Calls are rate limited and guarded by a circuit breaker; an unknown code is a
// normal answer and does not count as a breaker failure.
type MACServiceClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

var _ domain.AmbiguityCodeExpander = (*MACServiceClient)(nil)

// NewMACServiceClient creates a new ambiguity code service client
func NewMACServiceClient(config domain.AmbiguityCodesConfig, logger *logrus.Logger) *MACServiceClient {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 10
	}
	if config.BreakerRequests == 0 {
		config.BreakerRequests = 5
	}
	if config.BreakerTimeout == 0 {
		config.BreakerTimeout = 60 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "AmbiguityCodeService",
		MaxRequests: config.BreakerRequests,
		Interval:    30 * time.Second,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker changed state")
		},
	})

	return &MACServiceClient{
		baseURL: strings.TrimSuffix(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker: breaker,
		logger:  logger,
	}
}

// Expand decodes a typing such as "01:AB" into its allele names.
func (c *MACServiceClient) Expand(ctx context.Context, code string) ([]string, error) {
	formatted := domain.FormatLookupName(code)
	if !strings.Contains(formatted, ":") {
		return nil, domain.NewValidationError("ambiguity_code", "ambiguity code must have the form <first field>:<code>", code)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for ambiguity code service rate limit: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.decode(ctx, formatted)
	})
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			c.logger.WithFields(logrus.Fields{
				"code":  formatted,
				"error": err,
			}).Error("Ambiguity code service call failed")
		}
		return nil, err
	}
	return result.([]string), nil
}

// BreakerState reports the circuit breaker state.
func (c *MACServiceClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

func (c *MACServiceClient) decode(ctx context.Context, code string) ([]string, error) {
	decodeURL := fmt.Sprintf("%s/api/decode?%s", c.baseURL, url.Values{"typing": {code}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, decodeURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating decode request: %w", err)
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling ambiguity code service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading decode response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return nil, fmt.Errorf("ambiguity code %q: %w", code, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ambiguity code service returned status %d", resp.StatusCode)
	}

	names := expandCodeValue(typing.FirstField(code), strings.TrimSpace(string(body)))
	if len(names) == 0 {
		return nil, fmt.Errorf("ambiguity code %q: %w", code, domain.ErrNotFound)
	}
	return names, nil
}
