package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
	"github.com/OldStager01/alarm-evaluator/pkg/models"
)

const timestampField = "timestamp"

type HTTPFetcher struct {
	client   *http.Client
	endpoint string
}

type HTTPFetcherConfig struct {
	Endpoint string
	Timeout  time.Duration
}

func NewHTTPFetcher(cfg HTTPFetcherConfig) *HTTPFetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		endpoint: cfg.Endpoint,
	}
}

// StatisticsURL builds the meter statistics request for query.
func (f *HTTPFetcher) StatisticsURL(query models.StatisticsQuery) string {
	params := url.Values{}
	params.Set("period", strconv.Itoa(int(query.Period/time.Second)))

	addFilter := func(field, op, value string) {
		params.Add("q.field", field)
		params.Add("q.op", op)
		params.Add("q.value", value)
	}

	if !query.Start.IsZero() {
		addFilter(timestampField, "ge", query.Start.UTC().Format(time.RFC3339))
	}
	if !query.End.IsZero() {
		addFilter(timestampField, "le", query.End.UTC().Format(time.RFC3339))
	}
	for _, filter := range query.Filters() {
		addFilter(filter.Field, "eq", filter.Value)
	}

	return fmt.Sprintf("%s/v2/meters/%s/statistics?%s",
		f.endpoint, url.PathEscape(query.MetricName), params.Encode())
}

func (f *HTTPFetcher) Fetch(ctx context.Context, query models.StatisticsQuery) ([]models.Sample, error) {
	reqURL := f.StatisticsURL(query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", ErrRequestRejected, err)
	}
	req.Header.Set("Accept", "application/json")

	logger.WithField("meter", query.MetricName).Debugf("Fetching statistics from %s", reqURL)

	resp, err := f.client.Do(req)
	if err != nil {
		switch ctxErr := ctx.Err(); {
		case errors.Is(ctxErr, context.DeadlineExceeded):
			return nil, ErrTimeout
		case errors.Is(ctxErr, context.Canceled):
			// Shutdown, not an unavailable backend.
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: status code %d", ErrCommunication, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status code %d", ErrRequestRejected, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response body: %v", ErrCommunication, err)
	}

	samples, err := parseStatistics(body, query.Statistic)
	if err != nil {
		return nil, err
	}

	logger.WithField("meter", query.MetricName).Debugf("Fetched %d %s samples", len(samples), query.Statistic)
	return samples, nil
}

// parseStatistics reads the field named by kind from every element of the statistics array.
func parseStatistics(body []byte, kind models.StatisticKind) ([]models.Sample, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidResponse)
	}

	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of statistics", ErrInvalidResponse)
	}

	items := result.Array()
	samples := make([]models.Sample, 0, len(items))
	for i, item := range items {
		value := item.Get(string(kind))
		if !value.Exists() || value.Type != gjson.Number {
			return nil, fmt.Errorf("%w: statistic %d has no numeric %q", ErrInvalidResponse, i, kind)
		}

		sample := models.NewSample(kind, value.Float())
		sample.PeriodStart = parseTime(item.Get("period_start").String())
		sample.PeriodEnd = parseTime(item.Get("period_end").String())
		samples = append(samples, sample)
	}

	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].PeriodStart.Before(samples[j].PeriodStart)
	})

	return samples, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (f *HTTPFetcher) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
