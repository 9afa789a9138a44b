package httpgw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"hostboard/internal/app/policies"
	"hostboard/internal/domain/availability"
	"hostboard/internal/domain/shared/daterange"
)

var ErrNotConfigured = errors.New("httpgw: base url is required")

// StatusError is a non-2xx answer of the platform.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpgw: %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Temporary reports whether repeating the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

type Config struct {
	BaseURL    string
	Token      string
	Currency   string
	Timeout    time.Duration
	RPS        float64
	Burst      int
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the booking platform calendar API. Every call waits for the shared rate
// limiter; reads are retried on transient failures, writes never are.
type Client struct {
	base       *url.URL
	token      string
	currency   string
	httpc      *http.Client
	limiter    *rate.Limiter
	retries    uint
	retryDelay time.Duration
	logger     *slog.Logger
}

func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, ErrNotConfigured
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("httpgw: parse base url: %w", err)
	}
	httpc := cfg.HTTPClient
	if httpc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpc = &http.Client{Timeout: timeout}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	currency := strings.ToUpper(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "EUR"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:       base,
		token:      cfg.Token,
		currency:   currency,
		httpc:      httpc,
		limiter:    rate.NewLimiter(limit, burst),
		retries:    uint(retries),
		retryDelay: delay,
		logger:     logger,
	}, nil
}

func (c *Client) FetchRange(ctx context.Context, propertyID string, start, end daterange.Date) (availability.RangeFeed, error) {
	q := url.Values{}
	q.Set("startDate", start.String())
	q.Set("endDate", end.String())
	var wire rangeResponse
	if err := c.read(ctx, propertyPath(propertyID, "calendar"), q, &wire); err != nil {
		return availability.RangeFeed{}, err
	}
	return wire.feed(), nil
}

func (c *Client) FetchMonthPricing(ctx context.Context, propertyID string, year int, month time.Month) (availability.PricingSnapshot, error) {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(int(month)))
	var wire map[string]wireDayPricing
	if err := c.read(ctx, propertyPath(propertyID, "pricing"), q, &wire); err != nil {
		return nil, err
	}
	out := make(availability.PricingSnapshot, len(wire))
	for key, day := range wire {
		d, err := daterange.ParseLoose(key)
		if err != nil {
			c.logger.Debug("skipping pricing entry with bad date", "property_id", propertyID, "key", key)
			continue
		}
		out[d] = day.pricing(c.currency)
	}
	return out, nil
}

func (c *Client) FetchDateDetail(ctx context.Context, propertyID string, d daterange.Date) (availability.DateDetail, error) {
	var wire wireDateDetail
	if err := c.read(ctx, propertyPath(propertyID, "calendar", d.String()), nil, &wire); err != nil {
		return availability.DateDetail{}, err
	}
	detail := availability.DateDetail{
		Date:              wire.Date.Date,
		Status:            strings.ToLower(strings.TrimSpace(wire.Status)),
		Price:             wire.Price.money(c.currency),
		MinimumStay:       wire.MinimumStay.value,
		CheckInAvailable:  wire.CheckInAvailable,
		CheckOutAvailable: wire.CheckOutAvailable,
	}
	if detail.Date.IsZero() {
		detail.Date = d
	}
	return detail, nil
}

func (c *Client) SetAvailability(ctx context.Context, propertyID string, start, end daterange.Date, flag availability.AvailabilityFlag) error {
	body := map[string]any{"startDate": start, "endDate": end, "flag": flag}
	return c.write(ctx, propertyPath(propertyID, "availability"), body)
}

func (c *Client) SetPrice(ctx context.Context, propertyID string, change availability.PriceChange) error {
	body := map[string]any{
		"startDate": change.Range.Start,
		"endDate":   change.Range.End,
		"price":     change.Price.Major(),
		"currency":  change.Price.Currency,
	}
	return c.write(ctx, propertyPath(propertyID, "pricing"), body)
}

func (c *Client) SetMinimumStay(ctx context.Context, propertyID string, change availability.MinimumStayChange) error {
	body := map[string]any{
		"startDate":   change.Range.Start,
		"endDate":     change.Range.End,
		"minimumStay": change.MinimumStay,
	}
	return c.write(ctx, propertyPath(propertyID, "minimum-stay"), body)
}

func (c *Client) read(ctx context.Context, path string, q url.Values, out any) error {
	return retry.Do(
		func() error { return c.do(ctx, http.MethodGet, path, q, nil, out) },
		retry.Context(ctx),
		retry.Attempts(c.retries),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying platform read", "path", path, "attempt", n+1, "error", err)
		}),
	)
}

func (c *Client) write(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httpgw: encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, nil, payload, nil)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, payload []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.base.JoinPath(path)
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokenFor(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: truncate(string(raw), 256)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Unrecoverable(fmt.Errorf("httpgw: decode %s: %w", path, err))
	}
	return nil
}

func (c *Client) tokenFor(ctx context.Context) string {
	if token := policies.AccessTokenFromContext(ctx); token != "" {
		return token
	}
	return c.token
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Temporary()
	}
	return true
}

func propertyPath(propertyID string, parts ...string) string {
	segments := append([]string{"properties", url.PathEscape(propertyID)}, parts...)
	return strings.Join(segments, "/")
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ policies.CalendarGateway = (*Client)(nil)
