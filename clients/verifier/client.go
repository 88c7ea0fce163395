// Package verifier is the HTTP client for the attestation preparer service.
package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/trufnetwork/fdc-attestor/workflow"
)

const (
	serviceName  = "preparer"
	apiKeyHeader = "X-API-KEY"

	// maxErrorBody bounds how much of a failed response is kept in errors.
	maxErrorBody = 512
)

// Client prepares attestation requests through the verifier's
// /{attestationKind}/prepareRequest endpoint.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	apiKey  string
	logger  *zap.SugaredLogger
}

var _ workflow.Preparer = (*Client)(nil)

func New(baseURL, apiKey string, httpClient *retryablehttp.Client, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		logger:  logger.Named("verifier"),
	}
}

type requestBody struct {
	URL          string `json:"url"`
	HTTPMethod   string `json:"httpMethod"`
	Headers      string `json:"headers"`
	QueryParams  string `json:"queryParams"`
	Body         string `json:"body"`
	PostProcess  string `json:"postProcessJq"`
	AbiSignature string `json:"abiSignature"`
}

type prepareBody struct {
	AttestationType string      `json:"attestationType"`
	SourceID        string      `json:"sourceId"`
	RequestBody     requestBody `json:"requestBody"`
}

type prepareResponse struct {
	Status            string `json:"status"`
	AbiEncodedRequest string `json:"abiEncodedRequest"`
}

// EncodeBytes32 returns name as a right-padded 0x-prefixed bytes32 hex
// string, the form the verifier expects for attestation types and source ids.
func EncodeBytes32(name string) (string, error) {
	if len(name) > common.HashLength {
		return "", fmt.Errorf("%q is longer than %d bytes", name, common.HashLength)
	}
	return hexutil.Encode(common.RightPadBytes([]byte(name), common.HashLength)), nil
}

func (c *Client) Prepare(ctx context.Context, req workflow.PrepareRequest) (*workflow.PreparedRequest, error) {
	body, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/" + req.AttestationKind + "/prepareRequest"
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &workflow.ConfigError{Field: "verifier_url", Reason: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if resp == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &workflow.TransientServiceError{Service: serviceName, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &workflow.TransientServiceError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("%s", strings.TrimSpace(string(snippet))),
		}
	}

	var out prepareResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "decode response: " + err.Error()}
	}
	if out.Status != workflow.StatusValid {
		c.logger.Warnw("preparer rejected request", "status", out.Status, "url", req.Params.EndpointURL())
		return nil, &workflow.ValidationError{Field: "status", Reason: "preparer returned " + out.Status}
	}
	encoded, err := hexutil.Decode(out.AbiEncodedRequest)
	if err != nil || len(encoded) == 0 {
		return nil, &workflow.ProtocolError{Service: serviceName, Reason: "invalid abiEncodedRequest"}
	}

	c.logger.Debugw("request prepared", "url", req.Params.EndpointURL(), "bytes", len(encoded))
	return &workflow.PreparedRequest{Status: out.Status, EncodedRequest: encoded}, nil
}

func (c *Client) encode(req workflow.PrepareRequest) ([]byte, error) {
	attType, err := EncodeBytes32(req.AttestationKind)
	if err != nil {
		return nil, &workflow.ConfigError{Field: "attestation_kind", Reason: err.Error()}
	}
	sourceID, err := EncodeBytes32(req.SourceID)
	if err != nil {
		return nil, &workflow.ConfigError{Field: "source_id", Reason: err.Error()}
	}
	headers, err := jsonObject(req.Params.Headers())
	if err != nil {
		return nil, err
	}
	query, err := jsonObject(req.Params.QueryParams())
	if err != nil {
		return nil, err
	}
	reqBody := req.Params.Body()
	if reqBody == "" {
		reqBody = "{}"
	}

	return json.Marshal(prepareBody{
		AttestationType: attType,
		SourceID:        sourceID,
		RequestBody: requestBody{
			URL:          req.Params.EndpointURL(),
			HTTPMethod:   req.Params.Method(),
			Headers:      headers,
			QueryParams:  query,
			Body:         reqBody,
			PostProcess:  req.Params.PostProcessFilter(),
			AbiSignature: req.Params.ResponseShapeSignature(),
		},
	})
}

// jsonObject renders m as a JSON object string; nil renders as "{}".
func jsonObject(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
