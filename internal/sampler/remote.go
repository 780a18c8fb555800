package sampler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stitts-dev/dfs-qubo/internal/qubo"
	"github.com/stitts-dev/dfs-qubo/pkg/utils"
)

// SamplePath is the endpoint a RemoteSampler posts to
const SamplePath = "/api/v1/sample"

// SampleRequest is the wire format of a remote sampling call
type SampleRequest struct {
	QUBO    *qubo.Matrix `json:"qubo" binding:"required"`
	Params  Params       `json:"params"`
	Sampler string       `json:"sampler,omitempty"`
}

type sampleResponse struct {
	Success bool            `json:"success"`
	Data    *SampleSet      `json:"data"`
	Error   *utils.AppError `json:"error"`
}

// RemoteConfig configures a RemoteSampler
type RemoteConfig struct {
	BaseURL          string
	Sampler          string
	Timeout          time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

// RemoteSampler delegates sampling to another instance of the service over
// HTTP. Transport failures and 5xx responses count towards the circuit breaker.
type RemoteSampler struct {
	baseURL string
	sampler string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Entry
}

// NewRemoteSampler creates a remote sampler client
func NewRemoteSampler(cfg RemoteConfig, logger *logrus.Logger) *RemoteSampler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	entry := logger.WithField("component", "remote_sampler")
	settings := gobreaker.Settings{
		Name:        "remote-sampler",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, utils.ErrInvalidInput)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("Circuit breaker state changed")
		},
	}

	return &RemoteSampler{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		sampler: cfg.Sampler,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  entry,
	}
}

func (r *RemoteSampler) Name() string {
	return "remote"
}

// State reports the circuit breaker state
func (r *RemoteSampler) State() gobreaker.State {
	return r.breaker.State()
}

func (r *RemoteSampler) Sample(ctx context.Context, q *qubo.Matrix, params Params) (*SampleSet, error) {
	if r.baseURL == "" {
		return nil, fmt.Errorf("%w: no remote sampler URL configured", utils.ErrSamplerUnavailable)
	}

	body, err := json.Marshal(SampleRequest{QUBO: q, Params: params, Sampler: r.sampler})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sample request: %w", err)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.post(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", utils.ErrSamplerUnavailable, err)
		}
		return nil, err
	}

	set := result.(*SampleSet)
	r.logger.WithFields(logrus.Fields{
		"distinct": len(set.Samples),
		"reads":    set.NumReads,
	}).Debug("Remote sampling completed")
	return set, nil
}

func (r *RemoteSampler) post(ctx context.Context, body []byte) (*SampleSet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+SamplePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build sample request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", utils.ErrSamplerUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", utils.ErrSamplerUnavailable, err)
	}

	var decoded sampleResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed response (status %d): %v", utils.ErrSamplerUnavailable, resp.StatusCode, err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", utils.ErrSamplerUnavailable, resp.StatusCode, describe(decoded.Error))
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: remote rejected request: %s", utils.ErrInvalidInput, describe(decoded.Error))
	case decoded.Data == nil || len(decoded.Data.Samples) == 0:
		return nil, fmt.Errorf("%w: remote returned no samples", utils.ErrSamplerUnavailable)
	}

	return decoded.Data, nil
}

func describe(err *utils.AppError) string {
	if err == nil {
		return "no error detail"
	}
	return err.Error()
}
