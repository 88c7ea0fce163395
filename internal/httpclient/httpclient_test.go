package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New(Options{RetryMax: -1}, nil)
	assert.Equal(t, 0, c.RetryMax)
	assert.Equal(t, DefaultRetryWaitMin, c.RetryWaitMin)
	assert.Equal(t, DefaultRetryWaitMax, c.RetryWaitMax)
	assert.Equal(t, DefaultTimeout, c.HTTPClient.Timeout)
	assert.Nil(t, c.Logger)
}

func TestNewPassesThroughFinalResponse(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(Options{RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond}, zaptest.NewLogger(t).Sugar())
	req, err := retryablehttp.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	// The retry policy reports the 5xx as an error alongside the response.
	resp, _ := c.Do(req)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, int32(3), hits.Load())
}
