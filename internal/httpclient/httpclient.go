// Package httpclient builds the retryable HTTP clients shared by the service
// clients.
package httpclient

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout      = 30 * time.Second
	DefaultRetryWaitMin = 1 * time.Second
	DefaultRetryWaitMax = 5 * time.Second
)

// Options configures transport-level retries. RetryMax 0 sends each request
// once and leaves retrying to the caller.
type Options struct {
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
}

// New returns a client that hands the final response back to the caller
// instead of replacing non-2xx answers with a generic error.
func New(opts Options, logger *zap.SugaredLogger) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = max(opts.RetryMax, 0)
	client.RetryWaitMin = orDefault(opts.RetryWaitMin, DefaultRetryWaitMin)
	client.RetryWaitMax = orDefault(opts.RetryWaitMax, DefaultRetryWaitMax)
	client.HTTPClient = &http.Client{Timeout: orDefault(opts.Timeout, DefaultTimeout)}
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		client.Logger = leveledLogger{logger.Named("http")}
	} else {
		client.Logger = nil
	}
	return client
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
