package workflow

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/url"
	"strings"
)

var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodPatch:  {},
	http.MethodDelete: {},
}

// RequestConfig is the plain description of a data source request.
type RequestConfig struct {
	URL                    string            `json:"url" yaml:"url" mapstructure:"url"`
	Method                 string            `json:"method" yaml:"method" mapstructure:"method"`
	Headers                map[string]string `json:"headers,omitempty" yaml:"headers" mapstructure:"headers"`
	QueryParams            map[string]string `json:"query_params,omitempty" yaml:"query_params" mapstructure:"query_params"`
	Body                   string            `json:"body,omitempty" yaml:"body" mapstructure:"body"`
	PostProcessFilter      string            `json:"post_process_filter" yaml:"post_process_filter" mapstructure:"post_process_filter"`
	ResponseShapeSignature string            `json:"response_shape_signature" yaml:"response_shape_signature" mapstructure:"response_shape_signature"`
}

// RequestParams is a validated, immutable RequestConfig. Build it with
// NewRequestParams or RequestBuilder.
type RequestParams struct {
	endpointURL            string
	method                 string
	headers                map[string]string
	queryParams            map[string]string
	body                   string
	postProcessFilter      string
	responseShapeSignature string
}

// NewRequestParams validates cfg and returns an immutable copy of it.
// An empty method defaults to GET.
func NewRequestParams(cfg RequestConfig) (RequestParams, error) {
	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}
	p := RequestParams{
		endpointURL:            strings.TrimSpace(cfg.URL),
		method:                 method,
		headers:                maps.Clone(cfg.Headers),
		queryParams:            maps.Clone(cfg.QueryParams),
		body:                   cfg.Body,
		postProcessFilter:      strings.TrimSpace(cfg.PostProcessFilter),
		responseShapeSignature: strings.TrimSpace(cfg.ResponseShapeSignature),
	}
	if err := p.Validate(); err != nil {
		return RequestParams{}, err
	}
	return p, nil
}

// Validate checks every field the preparer depends on.
func (p RequestParams) Validate() error {
	if p.endpointURL == "" {
		return &ValidationError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(p.endpointURL)
	if err != nil {
		return &ValidationError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "url", Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &ValidationError{Field: "url", Reason: "host must not be empty"}
	}
	if _, ok := allowedMethods[p.method]; !ok {
		return &ValidationError{Field: "method", Reason: "unsupported method " + p.method}
	}
	if p.postProcessFilter == "" {
		return &ValidationError{Field: "post_process_filter", Reason: "must not be empty"}
	}
	if p.responseShapeSignature == "" {
		return &ValidationError{Field: "response_shape_signature", Reason: "must not be empty"}
	}
	if p.body != "" && !json.Valid([]byte(p.body)) {
		return &ValidationError{Field: "body", Reason: "must be valid JSON"}
	}
	return nil
}

func (p RequestParams) EndpointURL() string { return p.endpointURL }
func (p RequestParams) Method() string { return p.method }
func (p RequestParams) Headers() map[string]string { return maps.Clone(p.headers) }
func (p RequestParams) QueryParams() map[string]string { return maps.Clone(p.queryParams) }
func (p RequestParams) Body() string { return p.body }
func (p RequestParams) PostProcessFilter() string { return p.postProcessFilter }
func (p RequestParams) ResponseShapeSignature() string { return p.responseShapeSignature }

// Config returns a mutable copy of the underlying configuration.
func (p RequestParams) Config() RequestConfig {
	return RequestConfig{
		URL:                    p.endpointURL,
		Method:                 p.method,
		Headers:                p.Headers(),
		QueryParams:            p.QueryParams(),
		Body:                   p.body,
		PostProcessFilter:      p.postProcessFilter,
		ResponseShapeSignature: p.responseShapeSignature,
	}
}

// RequestBuilder is a fluent veneer over RequestConfig.
type RequestBuilder struct {
	cfg RequestConfig
}

func NewRequestBuilder(endpointURL string) *RequestBuilder {
	return &RequestBuilder{cfg: RequestConfig{URL: endpointURL}}
}

func (b *RequestBuilder) Method(method string) *RequestBuilder {
	b.cfg.Method = method
	return b
}

func (b *RequestBuilder) Header(key, value string) *RequestBuilder {
	if b.cfg.Headers == nil {
		b.cfg.Headers = make(map[string]string)
	}
	b.cfg.Headers[key] = value
	return b
}

func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	if b.cfg.QueryParams == nil {
		b.cfg.QueryParams = make(map[string]string)
	}
	b.cfg.QueryParams[key] = value
	return b
}

func (b *RequestBuilder) Body(body string) *RequestBuilder {
	b.cfg.Body = body
	return b
}

func (b *RequestBuilder) PostProcess(filter string) *RequestBuilder {
	b.cfg.PostProcessFilter = filter
	return b
}

func (b *RequestBuilder) ResponseShape(signature string) *RequestBuilder {
	b.cfg.ResponseShapeSignature = signature
	return b
}

// Build validates the accumulated configuration.
func (b *RequestBuilder) Build() (RequestParams, error) {
	return NewRequestParams(b.cfg)
}
