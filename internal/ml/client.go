// Package ml talks to the external risk-prediction service.
package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rsyarsya/pneuscope/pkg/circuitbreaker"
	"github.com/rsyarsya/pneuscope/pkg/metrics"
)

var (
	ErrUnavailable = errors.New("ml service unavailable")
	ErrBadResponse = errors.New("ml service returned an invalid response")
)

// Prediction is a successful answer from the ML service.
type Prediction struct {
	RiskScore  float64                `json:"risk_score"`
	Confidence *float64               `json:"confidence"`
	Analysis   map[string]interface{} `json:"analysis"`
}

type Predictor interface {
	Predict(ctx context.Context, samples []float64) (*Prediction, error)
}

type Config struct {
	URL             string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type Client struct {
	client  *resty.Client
	cb      *circuitbreaker.CircuitBreaker
	metrics *metrics.Metrics
}

const maxResponseBytes = 1 << 20

// NewClient returns a client for POST {url}/predict. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		client: resty.New().
			SetBaseURL(strings.TrimRight(cfg.URL, "/")).
			SetTimeout(timeout).
			SetHeader("Content-Type", "application/json"),
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "ml-service",
			MaxFailures: cfg.BreakerFailures,
			Timeout:     cfg.BreakerTimeout,
		}),
		metrics: m,
	}
}

type predictRequest struct {
	Audio []float64 `json:"audio"`
}

func (c *Client) Predict(ctx context.Context, samples []float64) (*Prediction, error) {
	start := time.Now()
	var pred *Prediction
	err := c.cb.Execute(func() error {
		var err error
		pred, err = c.do(ctx, samples)
		return err
	})
	c.observe(start, err)
	if err != nil {
		return nil, err
	}
	return pred, nil
}

func (c *Client) do(ctx context.Context, samples []float64) (*Prediction, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(predictRequest{Audio: samples}).
		SetDoNotParseResponse(true).
		Post("/predict")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode(), strings.TrimSpace(string(snippet)))
	}

	var raw struct {
		RiskScore  *float64               `json:"risk_score"`
		Confidence *float64               `json:"confidence"`
		Analysis   map[string]interface{} `json:"analysis"`
	}
	if err := json.NewDecoder(io.LimitReader(body, maxResponseBytes)).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if raw.RiskScore == nil || !inUnitInterval(*raw.RiskScore) {
		return nil, fmt.Errorf("%w: risk_score missing or outside [0,1]", ErrBadResponse)
	}
	if raw.Confidence != nil && !inUnitInterval(*raw.Confidence) {
		raw.Confidence = nil
	}

	return &Prediction{
		RiskScore:  *raw.RiskScore,
		Confidence: raw.Confidence,
		Analysis:   raw.Analysis,
	}, nil
}

func (c *Client) observe(start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(err, circuitbreaker.ErrOpen):
		outcome = "breaker_open"
	case errors.Is(err, ErrBadResponse):
		outcome = "bad_response"
	case err != nil:
		outcome = "unavailable"
	}
	c.metrics.MLRequests.With(prometheus.Labels{"outcome": outcome}).Inc()
	if outcome != "breaker_open" {
		c.metrics.MLLatency.Observe(time.Since(start).Seconds())
	}
}

func inUnitInterval(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}
