package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"identrisk/internal/verification/metrics"
	"identrisk/internal/verification/models"
	"identrisk/pkg/platform/circuit"
)

// HTTPClient calls the registry's citizen lookup endpoint once per Verify, with a
// hard timeout, an outbound rate limit and a circuit breaker. It never retries.
type HTTPClient struct {
	baseURL   string
	http      *http.Client
	timeout   time.Duration
	limiter   *rate.Limiter
	breaker   *circuit.Breaker
	regulated bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures the HTTPClient.
type Option func(*HTTPClient)

func WithTimeout(d time.Duration) Option {
	return func(c *HTTPClient) { c.timeout = d }
}

// WithRateLimit bounds outbound calls per second.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *HTTPClient) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *HTTPClient) { c.breaker = b }
}

// WithRegulatedMode minimises results before they leave the client.
func WithRegulatedMode(on bool) Option {
	return func(c *HTTPClient) { c.regulated = on }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *HTTPClient) { c.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *HTTPClient) { c.metrics = m }
}

// WithHTTPClient replaces the transport, for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.http = hc }
}

func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		timeout: 5 * time.Second,
		limiter: rate.NewLimiter(rate.Inf, 1),
		breaker: circuit.New("registry"),
		logger:  slog.Default(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type citizenResponse struct {
	NIK       string   `json:"nik"`
	Name      string   `json:"name"`
	BirthDate string   `json:"birthDate"`
	Gender    string   `json:"gender"`
	Status    string   `json:"status"`
	Score     *float64 `json:"matchScore,omitempty"`
}

// Verify implements Verifier.
func (c *HTTPClient) Verify(ctx context.Context, nik string) models.RegistryResult {
	if !ValidFormat(nik) {
		return c.finish(ctx, InvalidFormatResult(nik, c.now()))
	}
	if !c.breaker.Allow() {
		return c.finish(ctx, ErrorResult(nik, &Failure{Category: FailureCircuitOpen}, c.now()))
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return c.finish(ctx, ErrorResult(nik, &Failure{Category: FailureRateLimited, Err: err}, c.now()))
	}

	result, err := c.lookup(ctx, nik)
	if err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "registry circuit opened", "breaker", c.breaker.Name())
		}
		return c.finish(ctx, ErrorResult(nik, err, c.now()))
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "registry circuit closed", "breaker", c.breaker.Name())
	}
	return c.finish(ctx, result)
}

func (c *HTTPClient) finish(ctx context.Context, r models.RegistryResult) models.RegistryResult {
	c.metrics.IncrementRegistryResult(string(r.Status))
	if r.Status == models.RegistryError {
		c.logger.WarnContext(ctx, "registry lookup failed", "notes", r.Notes)
	}
	if c.regulated {
		return Minimize(r)
	}
	return r
}

func (c *HTTPClient) lookup(ctx context.Context, nik string) (models.RegistryResult, error) {
	endpoint := c.baseURL + "/v1/citizens/" + url.PathEscape(nik)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.RegistryResult{}, &Failure{Category: FailureInternal, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.RegistryResult{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.RegistryResult{
			IDNumber:  nik,
			IsValid:   false,
			Status:    models.RegistryNotFound,
			Notes:     "NIK not registered",
			CheckedAt: c.now(),
		}, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.RegistryResult{}, &Failure{Category: FailureRateLimited, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return models.RegistryResult{}, &Failure{Category: FailureOutage, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	var body citizenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return models.RegistryResult{}, &Failure{Category: FailureBadData, Err: err}
	}
	if body.NIK != "" && body.NIK != nik {
		return models.RegistryResult{}, &Failure{Category: FailureBadData, Err: fmt.Errorf("registry answered for a different NIK")}
	}

	status := models.RegistryStatus(strings.ToUpper(body.Status))
	switch status {
	case models.RegistryActive, models.RegistryInactive, models.RegistryDeceased:
	default:
		return models.RegistryResult{}, &Failure{Category: FailureBadData, Err: fmt.Errorf("unknown registry status %q", body.Status)}
	}
	return models.RegistryResult{
		IDNumber:   nik,
		IsValid:    status == models.RegistryActive,
		Name:       body.Name,
		BirthDate:  body.BirthDate,
		Gender:     body.Gender,
		Status:     status,
		MatchScore: body.Score,
		CheckedAt:  c.now(),
	}, nil
}
