// Package dalayer is the HTTP client for the data-availability layer that
// distributes attestation proofs once a voting round is finalized.
package dalayer

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

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow"
	"github.com/trufnetwork/fdc-attestor/workflow/metrics"
)

const (
	serviceName  = "proof"
	apiKeyHeader = "X-API-KEY"
	proofPath    = "/api/v1/fdc/proof-by-request-round-raw"
	maxErrorBody = 512
)

// Circuit breaker configuration constants
const (
	DefaultCircuitBreakerMaxRequests  = 3
	DefaultCircuitBreakerInterval     = 10 * time.Second
	DefaultCircuitBreakerTimeout      = 60 * time.Second
	DefaultCircuitBreakerFailureRatio = 0.6
)

// ErrNotReady is returned while the DA layer has no proof for the request,
// which it signals with 400 or 404 until the round's proofs are published.
var ErrNotReady = errors.New("proof not yet published")

// Client fetches proofs from the DA layer. Requests run behind a circuit
// breaker; "not ready" answers do not count as breaker failures.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	breaker *gobreaker.CircuitBreaker
	metrics metrics.MetricsRecorder
	logger  *zap.SugaredLogger
}

var _ workflow.ProofService = (*Client)(nil)

// Option customises a Client.
type Option func(*Client)

func WithLogger(logger *zap.SugaredLogger) Option {
	return func(c *Client) { c.logger = logger.Named("dalayer") }
}

func WithMetrics(m metrics.MetricsRecorder) Option {
	return func(c *Client) { c.metrics = m }
}

func New(baseURL, apiKey string, httpClient *retryablehttp.Client, opts ...Option) *Client {
	c := &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		metrics: metrics.NewNoOpMetrics(),
		logger:  zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.breaker = c.newBreaker()
	return c
}

func (c *Client) newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: DefaultCircuitBreakerMaxRequests,
		Interval:    DefaultCircuitBreakerInterval,
		Timeout:     DefaultCircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= DefaultCircuitBreakerMaxRequests && failureRatio >= DefaultCircuitBreakerFailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotReady) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			c.logger.Infow("circuit breaker state changed",
				"service", name,
				"from", from.String(),
				"to", to.String())
			c.metrics.RecordCircuitBreakerStateChange(context.Background(), name, from, to)
		},
	})
}

// BreakerState reports the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type proofRequest struct {
	VotingRoundID uint64 `json:"votingRoundId"`
	RequestBytes  string `json:"requestBytes"`
}

type proofResponse struct {
	ResponseHex     string   `json:"response_hex"`
	AttestationType string   `json:"attestation_type"`
	Proof           []string `json:"proof"`
}

// FetchProof asks for the proof of encodedRequest in roundID. Every error it
// returns is a *workflow.TransientServiceError, a *workflow.ProtocolError or
// a context error.
func (c *Client) FetchProof(ctx context.Context, roundID uint64, encodedRequest []byte) (*workflow.ProofRecord, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx, roundID, encodedRequest)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &workflow.TransientServiceError{Service: serviceName, Cause: err}
		}
		return nil, err
	}
	return res.(*workflow.ProofRecord), nil
}

func (c *Client) fetch(ctx context.Context, roundID uint64, encodedRequest []byte) (*workflow.ProofRecord, error) {
	body, err := json.Marshal(proofRequest{
		VotingRoundID: roundID,
		RequestBytes:  hexutil.Encode(encodedRequest),
	})
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+proofPath, bytes.NewReader(body))
	if err != nil {
		return nil, &workflow.ConfigError{Field: "dalayer_url", Reason: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if resp == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &workflow.TransientServiceError{Service: serviceName, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusBadRequest:
		return nil, &workflow.TransientServiceError{Service: serviceName, StatusCode: resp.StatusCode, Cause: ErrNotReady}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &workflow.TransientServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	var out proofResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "decode response: " + err.Error()}
	}
	return toRecord(out)
}

func toRecord(out proofResponse) (*workflow.ProofRecord, error) {
	if out.ResponseHex == "" {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "missing response_hex"}
	}
	response, err := hexutil.Decode(ensure0x(out.ResponseHex))
	if err != nil {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "invalid response_hex: " + err.Error()}
	}

	path := make([]common.Hash, 0, len(out.Proof))
	for _, p := range out.Proof {
		b, err := hexutil.Decode(ensure0x(p))
		if err != nil || len(b) != common.HashLength {
			return nil, &workflow.ProtocolError{Service: serviceName, Reason: "invalid proof element " + p}
		}
		path = append(path, common.BytesToHash(b))
	}

	return &workflow.ProofRecord{
		ResponseBytes:   response,
		AttestationKind: decodeBytes32(out.AttestationType),
		ProofPath:       path,
	}, nil
}

// decodeBytes32 turns a right-padded bytes32 hex name back into text. Values
// that are not hex are returned unchanged.
func decodeBytes32(s string) string {
	b, err := hexutil.Decode(ensure0x(s))
	if err != nil {
		return s
	}
	return string(bytes.TrimRight(b, "\x00"))
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
