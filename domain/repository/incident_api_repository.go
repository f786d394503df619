package repository

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Songmu/retry"
	"github.com/pyama86/dlpwatch/domain/incident"
)

const maxResponseBytes = 32 << 20

var ErrUnexpectedStatus = fmt.Errorf("unexpected status from incidents api")

type IncidentAPIRepository struct {
	client    *http.Client
	endpoint  string
	token     string
	limit     int
	offset    int
	attempts  int
	retryWait time.Duration
}

func NewIncidentAPIRepository(c APIConfig) (*IncidentAPIRepository, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid api endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid api endpoint: %s", c.Endpoint)
	}

	attempts := c.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &IncidentAPIRepository{
		client:    &http.Client{},
		endpoint:  c.Endpoint,
		token:     c.Token,
		limit:     c.Limit,
		offset:    c.Offset,
		attempts:  attempts,
		retryWait: c.RetryWait,
	}, nil
}

func (r *IncidentAPIRepository) requestURL() string {
	u, _ := url.Parse(r.endpoint)
	q := u.Query()
	if r.limit > 0 {
		q.Set("limit", strconv.Itoa(r.limit))
	}
	q.Set("offset", strconv.Itoa(r.offset))
	u.RawQuery = q.Encode()
	return u.String()
}

// FetchIncidents はAPIからインシデント一覧を取得し、デコード済みのJSONをそのまま返す
func (r *IncidentAPIRepository) FetchIncidents(ctx context.Context) (any, error) {
	var payload any
	err := retry.Retry(uint(r.attempts), r.retryWait, func() error {
		if ctx.Err() != nil {
			return nil
		}
		p, err := r.fetch(ctx)
		if err != nil {
			slog.Debug("fetch incidents failed", slog.String("endpoint", r.endpoint), slog.Any("err", err))
			return err
		}
		payload = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch incidents: %w", err)
	}
	return payload, nil
}

func (r *IncidentAPIRepository) fetch(ctx context.Context) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.requestURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request incidents: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	payload, err := incident.DecodePayload(body)
	if err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return payload, nil
}
